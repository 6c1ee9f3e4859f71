package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// AuditService verifies that a project's cached current amount equals the
// newTotal of its last history entry (zero when there is none).
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "audit"),
		now:         utcNow,
	}
}

// Check returns nil when the project is consistent and a
// *common.ConsistencyWarning when it is not.
func (s *AuditService) Check(ctx context.Context, id string) error {
	p, err := s.repomanager.Projects(s.db).GetByID(ctx, id)
	if err != nil {
		return common.WrapStore("get project", err)
	}
	return s.check(ctx, s.db, p)
}

func (s *AuditService) check(ctx context.Context, db dbx.DBTX, p *models.Project) error {
	expected, err := s.expectedTotal(ctx, db, p.ID)
	if err != nil {
		return err
	}
	if p.CurrentAmount.Equal(expected) {
		return nil
	}
	return &common.ConsistencyWarning{ProjectID: p.ID, Stored: p.CurrentAmount, Expected: expected}
}

func (s *AuditService) expectedTotal(ctx context.Context, db dbx.DBTX, id string) (decimal.Decimal, error) {
	last, err := s.repomanager.History(db).Last(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, common.WrapStore("read history", err)
	}
	return last.NewTotal, nil
}

// Repair rewrites the cached current amount from the history log and
// returns the project as stored afterwards. Consistent projects are
// returned untouched.
func (s *AuditService) Repair(ctx context.Context, id string) (*models.Project, error) {
	var p *models.Project
	repaired := false

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		projects := s.repomanager.Projects(tx)

		var err error
		p, err = projects.GetByID(ctx, id)
		if err != nil {
			return err
		}

		expected, err := s.expectedTotal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.CurrentAmount.Equal(expected) {
			return nil
		}

		now := s.now()
		if err := projects.SetCurrentAmount(ctx, id, expected, now); err != nil {
			return err
		}
		p.CurrentAmount = expected
		p.UpdatedAt = now
		p.Version++
		repaired = true
		return nil
	})
	if err != nil {
		return nil, common.WrapStore("repair project", err)
	}

	if repaired {
		metrics.ConsistencyRepairs.Inc()
		s.logger.Info(ctx, "current amount repaired from history", "project_id", id,
			"current_amount", p.CurrentAmount.String())
	}
	return p, nil
}

// AuditAll checks every project and returns the mismatches found. With
// repair set each mismatch is also fixed.
func (s *AuditService) AuditAll(ctx context.Context, repair bool) ([]*common.ConsistencyWarning, error) {
	list, err := s.repomanager.Projects(s.db).List(ctx)
	if err != nil {
		return nil, common.WrapStore("list projects", err)
	}

	var found []*common.ConsistencyWarning
	for _, p := range list {
		err := s.check(ctx, s.db, p)

		var warn *common.ConsistencyWarning
		if !errors.As(err, &warn) {
			if err != nil {
				return found, err
			}
			continue
		}

		metrics.ConsistencyMismatches.Inc()
		s.logger.Warn(ctx, "ledger mismatch", "project_id", p.ID,
			"stored", warn.Stored.String(), "expected", warn.Expected.String())
		found = append(found, warn)

		if repair {
			if _, err := s.Repair(ctx, p.ID); err != nil {
				return found, err
			}
		}
	}

	return found, nil
}
