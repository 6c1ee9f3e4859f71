// Package services contains server-side business logic. ProjectService keeps
// a project's current amount and its contribution history in step: every
// change of the amount is written to the log in the same transaction.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/imaging"
	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/archive"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/dmitrijs2005/fundkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ProjectService creates, updates and reads projects.
type ProjectService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	codec         imaging.Codec
	coverMaxWidth int
	qrMaxWidth    int
	archiver      archive.Archiver
	audit         *AuditService
	repairOnRead  bool
	logger        logging.Logger
	now           func() time.Time
}

// NewProjectService wires a ProjectService from server config. A nil
// archiver disables archiving of original uploads.
func NewProjectService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	archiver archive.Archiver, logger logging.Logger) *ProjectService {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	s := &ProjectService{
		db:            db,
		repomanager:   m,
		coverMaxWidth: cfg.CoverMaxWidth,
		qrMaxWidth:    cfg.QRMaxWidth,
		archiver:      archiver,
		repairOnRead:  cfg.RepairOnRead,
		logger:        logger.With("module", "projects"),
		now:           utcNow,
	}
	s.codec = imaging.Codec{
		MaxBytes:  cfg.MaxArtifactBytes,
		MaxPixels: cfg.MaxSourcePixels,
		OnDone: func(name string, elapsed time.Duration, err error) {
			metrics.ImageNormalizeDuration.WithLabelValues(name).Observe(elapsed.Seconds())
			if err != nil {
				metrics.ImageNormalizeFailures.WithLabelValues(name).Inc()
			}
		},
	}
	s.audit = NewAuditService(db, m, logger)
	s.audit.now = func() time.Time { return s.now() }
	return s
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreateProject validates draft, normalizes its images and stores the
// project. A positive current amount is recorded as an "Initial Amount"
// history entry in the same transaction.
func (s *ProjectService) CreateProject(ctx context.Context, draft *models.ProjectDraft) (*models.Project, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	images, err := s.normalizeImages(ctx, draft)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := s.now()

	p := &models.Project{ID: id, CreatedAt: now}
	applyDraft(p, draft, now)
	images.apply(p)

	var seed *models.HistoryEntry
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Projects(tx).Create(ctx, p); err != nil {
			return err
		}
		if !p.CurrentAmount.IsPositive() {
			return nil
		}
		seed = &models.HistoryEntry{
			ProjectID: id,
			Amount:    p.CurrentAmount,
			NewTotal:  p.CurrentAmount,
			Timestamp: now,
			Note:      common.NoteInitialAmount,
		}
		return s.repomanager.History(tx).Append(ctx, seed)
	})
	if err != nil {
		return nil, common.WrapStore("create project", err)
	}

	s.archiveOriginals(ctx, p, draft, images)

	if seed != nil {
		metrics.HistoryEntriesAppended.WithLabelValues(seed.Note).Inc()
	}
	s.logger.Info(ctx, "project created", "project_id", id, "current_amount", p.CurrentAmount.String())
	return p, nil
}

// UpdateProject overwrites the project's mutable fields with draft. When the
// current amount changes, an "Admin Update" entry carrying the difference is
// appended first; both writes commit together. Images absent from draft keep
// their stored artifacts. A concurrent update surfaces as
// common.ErrVersionConflict.
func (s *ProjectService) UpdateProject(ctx context.Context, id string, draft *models.ProjectDraft) (*models.Project, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Projects(s.db).GetByID(ctx, id); err != nil {
		return nil, common.WrapStore("get project", err)
	}

	images, err := s.normalizeImages(ctx, draft)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		p     *models.Project
		entry *models.HistoryEntry
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		projects := s.repomanager.Projects(tx)

		var err error
		p, err = projects.GetByID(ctx, id)
		if err != nil {
			return err
		}

		diff := draft.CurrentAmount.Sub(p.CurrentAmount)
		if !diff.IsZero() {
			entry = &models.HistoryEntry{
				ProjectID: id,
				Amount:    diff,
				NewTotal:  draft.CurrentAmount,
				Timestamp: now,
				Note:      common.NoteAdminUpdate,
			}
			if err := s.repomanager.History(tx).Append(ctx, entry); err != nil {
				return err
			}
		}

		applyDraft(p, draft, now)
		images.apply(p)
		return projects.Update(ctx, p)
	})
	if err != nil {
		return nil, common.WrapStore("update project", err)
	}

	s.archiveOriginals(ctx, p, draft, images)

	if entry != nil {
		metrics.HistoryEntriesAppended.WithLabelValues(entry.Note).Inc()
		s.logger.Info(ctx, "project amount changed", "project_id", id,
			"diff", entry.Amount.String(), "new_total", entry.NewTotal.String())
	}
	return p, nil
}

// GetProject returns the stored project. The cached current amount is
// checked against the history log; a mismatch is logged, counted and, when
// repair-on-read is enabled, fixed before returning.
func (s *ProjectService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.repomanager.Projects(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, common.WrapStore("get project", err)
	}

	s.reconcile(ctx, p)
	return p, nil
}

// ListProjects returns every project, oldest first.
func (s *ProjectService) ListProjects(ctx context.Context) ([]*models.Project, error) {
	list, err := s.repomanager.Projects(s.db).List(ctx)
	if err != nil {
		return nil, common.WrapStore("list projects", err)
	}
	if list == nil {
		list = []*models.Project{}
	}
	return list, nil
}

// OriginalURL returns a download link for the archived upload of kind.
func (s *ProjectService) OriginalURL(ctx context.Context, id, kind string) (string, error) {
	p, err := s.repomanager.Projects(s.db).GetByID(ctx, id)
	if err != nil {
		return "", common.WrapStore("get project", err)
	}

	var key string
	switch kind {
	case archive.KindImage:
		key = p.ImageOriginalKey
	case archive.KindQR:
		key = p.QROriginalKey
	default:
		return "", common.NewValidationError("kind", "must be image or qr")
	}
	if key == "" {
		return "", common.ErrorNotFound
	}

	return s.archiver.PresignedGetURL(ctx, key)
}

func (s *ProjectService) reconcile(ctx context.Context, p *models.Project) {
	err := s.audit.check(ctx, s.db, p)
	var warn *common.ConsistencyWarning
	if !errors.As(err, &warn) {
		if err != nil {
			s.logger.Error(ctx, "consistency check failed", "project_id", p.ID, "error", err)
		}
		return
	}

	metrics.ConsistencyMismatches.Inc()
	s.logger.Warn(ctx, "ledger mismatch", "project_id", p.ID,
		"stored", warn.Stored.String(), "expected", warn.Expected.String())

	if !s.repairOnRead {
		return
	}

	repaired, err := s.audit.Repair(ctx, p.ID)
	if err != nil {
		s.logger.Error(ctx, "ledger repair failed", "project_id", p.ID, "error", err)
		return
	}
	if repaired != nil {
		p.CurrentAmount = repaired.CurrentAmount
		p.Version = repaired.Version
		p.UpdatedAt = repaired.UpdatedAt
	}
}

// normalizedImages holds data URLs of new uploads. An empty data URL means
// the stored artifact is kept.
type normalizedImages struct {
	image  string
	qrCode string
}

// apply installs new artifacts. Their archive keys are cleared until the
// originals are archived after commit.
func (n normalizedImages) apply(p *models.Project) {
	if n.image != "" {
		p.Image = n.image
		p.ImageOriginalKey = ""
	}
	if n.qrCode != "" {
		p.QRCode = n.qrCode
		p.QROriginalKey = ""
	}
}

func (s *ProjectService) normalizeImages(ctx context.Context, draft *models.ProjectDraft) (normalizedImages, error) {
	var out normalizedImages
	if draft.ImageRaw == nil && draft.QRCodeRaw == nil {
		return out, nil
	}

	artifacts, err := s.codec.NormalizeAll(ctx, []imaging.Job{
		{Name: "image", Raw: draft.ImageRaw, MaxWidth: s.coverMaxWidth},
		{Name: "qrCode", Raw: draft.QRCodeRaw, MaxWidth: s.qrMaxWidth},
	})
	if err != nil {
		return out, err
	}

	if artifacts[0] != nil {
		out.image = artifacts[0].DataURL()
	}
	if artifacts[1] != nil {
		out.qrCode = artifacts[1].DataURL()
	}
	return out, nil
}

// archiveOriginals stores the raw bytes behind each new artifact of the
// committed project p and records their keys. It runs only after a
// successful save, so failed saves leave nothing in the bucket. Failures
// are logged and leave the key empty; the artifact is what matters.
func (s *ProjectService) archiveOriginals(ctx context.Context, p *models.Project, draft *models.ProjectDraft, images normalizedImages) {
	imageKey, qrKey := p.ImageOriginalKey, p.QROriginalKey
	if images.image != "" {
		imageKey = s.archiveOriginal(ctx, p.ID, archive.KindImage, draft.ImageRaw)
	}
	if images.qrCode != "" {
		qrKey = s.archiveOriginal(ctx, p.ID, archive.KindQR, draft.QRCodeRaw)
	}
	if imageKey == p.ImageOriginalKey && qrKey == p.QROriginalKey {
		return
	}

	err := s.repomanager.Projects(s.db).SetOriginalKeys(ctx, p.ID, p.Version, imageKey, qrKey)
	if err != nil {
		// A newer save won; its own uploads are the ones to keep.
		metrics.ArchiveFailures.Inc()
		s.logger.Warn(ctx, "archive keys not recorded", "project_id", p.ID, "error", err)
		return
	}
	p.ImageOriginalKey, p.QROriginalKey = imageKey, qrKey
}

func (s *ProjectService) archiveOriginal(ctx context.Context, id, kind string, raw []byte) string {
	key, err := s.archiver.Archive(ctx, id, kind, raw)
	if err != nil {
		metrics.ArchiveFailures.Inc()
		s.logger.Warn(ctx, "original upload not archived", "project_id", id, "kind", kind, "error", err)
		return ""
	}
	return key
}

func applyDraft(p *models.Project, d *models.ProjectDraft, now time.Time) {
	p.Name = d.Name
	p.BankDetails = d.BankDetails
	p.Type = d.Type
	p.TargetAmount = d.TargetAmount
	p.CurrentAmount = d.CurrentAmount
	p.Color = d.Color
	p.StartDate = d.StartDate
	p.EndDate = d.EndDate
	p.UpdatedAt = now
}
