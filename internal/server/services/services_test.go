package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/history"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fundkeeper/internal/server/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// -------- test fakes --------

type fakeArchiver struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (f *fakeArchiver) Archive(ctx context.Context, projectID, kind string, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	key := "projects/" + projectID + "/" + kind + "/k" + string(rune('0'+len(f.keys)))
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeArchiver) PresignedGetURL(ctx context.Context, key string) (string, error) {
	return "https://s3.local/" + key, nil
}

// failingHistoryManager serves real repositories except for a history
// repository whose Append fails.
type failingHistoryManager struct {
	repomanager.RepositoryManager
	err error
}

func (m *failingHistoryManager) History(db dbx.DBTX) history.Repository {
	return &failingHistoryRepo{Repository: m.RepositoryManager.History(db), err: m.err}
}

type failingHistoryRepo struct {
	history.Repository
	err error
}

func (r *failingHistoryRepo) Append(ctx context.Context, e *models.HistoryEntry) error {
	return r.err
}

// -------- helpers --------

type fixture struct {
	db       *sql.DB
	manager  repomanager.RepositoryManager
	projects *ProjectService
	history  *HistoryService
	audit    *AuditService
	archiver *fakeArchiver
	clock    *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, m := range mutate {
		m(cfg)
	}

	db := testdb.NewSQLite(t)
	m := repomanager.NewSQLiteRepositoryManager()
	clock := &fakeClock{t: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
	arch := &fakeArchiver{}

	ps := NewProjectService(db, m, cfg, arch, logging.Nop{})
	ps.now = clock.now

	return &fixture{
		db:       db,
		manager:  m,
		projects: ps,
		history:  NewHistoryService(db, m),
		audit:    ps.audit,
		archiver: arch,
		clock:    clock,
	}
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func draft(current, target int64) *models.ProjectDraft {
	return &models.ProjectDraft{
		Name:          "Library books",
		BankDetails:   "LV00BANK0000000000000",
		Type:          models.ProjectTypeFixed,
		TargetAmount:  amount(target),
		CurrentAmount: amount(current),
		Color:         "#336699",
		StartDate:     models.NewDate(2025, time.January, 1),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (f *fixture) listHistory(t *testing.T, id string) []*models.HistoryEntry {
	t.Helper()
	list, err := f.history.ListHistory(context.Background(), id)
	require.NoError(t, err)
	return list
}

// tamper rewrites current_amount behind the service's back.
func (f *fixture) tamper(t *testing.T, id string, v int64) {
	t.Helper()
	_, err := f.db.Exec(`UPDATE projects SET current_amount = ? WHERE id = ?`, amount(v), id)
	require.NoError(t, err)
}

var errBoom = errors.New("boom")
