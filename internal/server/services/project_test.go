package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/imaging"
	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/progress"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProject_SeedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(5000, 10000))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, f.clock.t, p.CreatedAt)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	list := f.listHistory(t, p.ID)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(amount(5000)))
	assert.True(t, list[0].NewTotal.Equal(amount(5000)))
	assert.Equal(t, common.NoteInitialAmount, list[0].Note)
	assert.Equal(t, int64(1), list[0].Seq)
}

func TestCreateProject_ZeroCurrentHasNoHistory(t *testing.T) {
	f := newFixture(t)

	p, err := f.projects.CreateProject(context.Background(), draft(0, 10000))
	require.NoError(t, err)
	assert.Empty(t, f.listHistory(t, p.ID))
}

func TestCreateProject_ValidationStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft(10, 0)
	d.Name = ""

	_, err := f.projects.CreateProject(ctx, d)
	require.ErrorIs(t, err, common.ErrorValidation)

	var ve *common.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "targetAmount")

	list, err := f.projects.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateProject_BadImageStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft(10, 100)
	d.ImageRaw = []byte("not an image")

	_, err := f.projects.CreateProject(ctx, d)
	require.ErrorIs(t, err, common.ErrDecode)

	list, err := f.projects.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.archiver.keys, "nothing archived for rejected uploads")
}

func TestCreateProject_NormalizesAndArchivesImages(t *testing.T) {
	f := newFixture(t)

	d := draft(0, 100)
	d.ImageRaw = pngBytes(t, 1600, 800)
	d.QRCodeRaw = pngBytes(t, 1000, 1000)

	p, err := f.projects.CreateProject(context.Background(), d)
	require.NoError(t, err)

	cover, err := imaging.ParseDataURL(p.Image)
	require.NoError(t, err)
	assert.Equal(t, 800, cover.Width)
	assert.Equal(t, 400, cover.Height)

	qr, err := imaging.ParseDataURL(p.QRCode)
	require.NoError(t, err)
	assert.Equal(t, 400, qr.Width)

	assert.True(t, strings.HasPrefix(p.ImageOriginalKey, "projects/"+p.ID+"/image/"))
	assert.True(t, strings.HasPrefix(p.QROriginalKey, "projects/"+p.ID+"/qr/"))

	url, err := f.projects.OriginalURL(context.Background(), p.ID, "qr")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/"+p.QROriginalKey, url)
}

func TestCreateProject_ArchiveFailureDoesNotFailSave(t *testing.T) {
	f := newFixture(t)
	f.archiver.err = errBoom

	d := draft(0, 100)
	d.ImageRaw = pngBytes(t, 10, 10)

	p, err := f.projects.CreateProject(context.Background(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Image)
	assert.Empty(t, p.ImageOriginalKey)

	_, err = f.projects.OriginalURL(context.Background(), p.ID, "image")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreateProject_ArtifactCeiling(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.MaxArtifactBytes = 16 })

	d := draft(0, 100)
	d.ImageRaw = pngBytes(t, 50, 50)

	_, err := f.projects.CreateProject(context.Background(), d)
	assert.ErrorIs(t, err, common.ErrArtifactTooLarge)
}

func TestUpdateProject_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(0, 100000))
	require.NoError(t, err)
	assert.Empty(t, f.listHistory(t, p.ID))

	f.clock.advance(time.Minute)
	_, err = f.projects.UpdateProject(ctx, p.ID, draft(30000, 100000))
	require.NoError(t, err)
	list := f.listHistory(t, p.ID)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(amount(30000)))
	assert.Equal(t, common.NoteAdminUpdate, list[0].Note)

	f.clock.advance(time.Minute)
	_, err = f.projects.UpdateProject(ctx, p.ID, draft(30000, 100000))
	require.NoError(t, err)
	assert.Len(t, f.listHistory(t, p.ID), 1)

	f.clock.advance(time.Minute)
	updated, err := f.projects.UpdateProject(ctx, p.ID, draft(20000, 100000))
	require.NoError(t, err)
	list = f.listHistory(t, p.ID)
	require.Len(t, list, 2)

	// Newest first: the decrease is on top.
	assert.True(t, list[0].Amount.Equal(amount(-10000)))
	assert.True(t, list[0].NewTotal.Equal(amount(20000)))

	pr := progress.Compute(updated.CurrentAmount, updated.TargetAmount, updated.Type)
	assert.Equal(t, 20, pr.Percent)
	assert.False(t, pr.Unbounded)
}

func TestUpdateProject_LedgerConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(100, 1000))
	require.NoError(t, err)

	sequence := []int64{100, 250, 250, 0, 75, 1500, 1500, 42}
	want := []int64{100}
	for _, v := range sequence {
		f.clock.advance(time.Second)
		_, err := f.projects.UpdateProject(ctx, p.ID, draft(v, 1000))
		require.NoError(t, err)
		if v != want[len(want)-1] {
			want = append(want, v)
		}
	}

	got, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(amount(42)))

	entries, err := f.manager.History(f.db).ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(want))

	running := amount(0)
	for i, e := range entries {
		running = running.Add(e.Amount)
		assert.True(t, e.NewTotal.Equal(amount(want[i])), "entry %d newTotal", i)
		assert.True(t, e.NewTotal.Equal(running), "entry %d running sum", i)
	}
	assert.NoError(t, f.audit.Check(ctx, p.ID))
}

func TestUpdateProject_OvershootStoredTruthfully(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(0, 10000))
	require.NoError(t, err)

	updated, err := f.projects.UpdateProject(ctx, p.ID, draft(12000, 10000))
	require.NoError(t, err)
	assert.True(t, updated.CurrentAmount.Equal(amount(12000)))
	assert.Equal(t, 100, progress.Compute(updated.CurrentAmount, updated.TargetAmount, updated.Type).Percent)
}

func TestUpdateProject_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.projects.UpdateProject(context.Background(), "00000000-0000-0000-0000-000000000000", draft(1, 10))
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateProject_ValidationLeavesProjectUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(10, 100))
	require.NoError(t, err)

	bad := draft(50, 100)
	bad.EndDate = models.NewDate(2024, time.June, 1)
	_, err = f.projects.UpdateProject(ctx, p.ID, bad)
	require.ErrorIs(t, err, common.ErrorValidation)

	got, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(amount(10)))
	assert.Len(t, f.listHistory(t, p.ID), 1)
}

func TestUpdateProject_HistoryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(10, 100))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	broken := NewProjectService(f.db, &failingHistoryManager{RepositoryManager: f.manager, err: errBoom}, cfg, nil, logging.Nop{})

	d := draft(60, 100)
	d.Name = "renamed"
	_, err = broken.UpdateProject(ctx, p.ID, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStore)
	assert.ErrorIs(t, err, errBoom)

	got, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Library books", got.Name, "project update must roll back with the history append")
	assert.True(t, got.CurrentAmount.Equal(amount(10)))
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateProject_KeepsImagesWhenNoUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft(0, 100)
	d.ImageRaw = pngBytes(t, 20, 20)
	d.QRCodeRaw = pngBytes(t, 30, 30)
	p, err := f.projects.CreateProject(ctx, d)
	require.NoError(t, err)

	updated, err := f.projects.UpdateProject(ctx, p.ID, draft(5, 100))
	require.NoError(t, err)
	assert.Equal(t, p.Image, updated.Image)
	assert.Equal(t, p.QRCode, updated.QRCode)
	assert.Equal(t, p.ImageOriginalKey, updated.ImageOriginalKey)

	withNewCover := draft(5, 100)
	withNewCover.ImageRaw = pngBytes(t, 40, 20)
	updated, err = f.projects.UpdateProject(ctx, p.ID, withNewCover)
	require.NoError(t, err)
	assert.NotEqual(t, p.Image, updated.Image)
	assert.NotEqual(t, p.ImageOriginalKey, updated.ImageOriginalKey)
	assert.Equal(t, p.QRCode, updated.QRCode, "QR untouched by a cover upload")
	assert.Equal(t, int64(3), updated.Version)
}

func TestGetProject_RepairOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(300, 1000))
	require.NoError(t, err)
	f.tamper(t, p.ID, 999)

	got, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(amount(300)))
	assert.Equal(t, int64(2), got.Version)

	assert.NoError(t, f.audit.Check(ctx, p.ID), "repair must persist")
}

func TestGetProject_ReportsWithoutRepair(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RepairOnRead = false })
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(300, 1000))
	require.NoError(t, err)
	f.tamper(t, p.ID, 999)

	got, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(amount(999)))

	var warn *common.ConsistencyWarning
	require.ErrorAs(t, f.audit.Check(ctx, p.ID), &warn)
	assert.True(t, warn.Expected.Equal(amount(300)))
}

func TestGetProject_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.projects.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.projects.ListProjects(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	first, err := f.projects.CreateProject(ctx, draft(1, 10))
	require.NoError(t, err)
	f.clock.advance(time.Second)
	second, err := f.projects.CreateProject(ctx, draft(2, 10))
	require.NoError(t, err)

	list, err = f.projects.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestOriginalURL_UnknownKind(t *testing.T) {
	f := newFixture(t)

	p, err := f.projects.CreateProject(context.Background(), draft(0, 10))
	require.NoError(t, err)

	_, err = f.projects.OriginalURL(context.Background(), p.ID, "thumbnail")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestSave_FailureArchivesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(10, 100))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	broken := NewProjectService(f.db, &failingHistoryManager{RepositoryManager: f.manager, err: errBoom}, cfg, f.archiver, logging.Nop{})

	create := draft(10, 100)
	create.ImageRaw = pngBytes(t, 20, 20)
	_, err = broken.CreateProject(ctx, create)
	require.ErrorIs(t, err, errBoom)

	update := draft(60, 100)
	update.QRCodeRaw = pngBytes(t, 20, 20)
	_, err = broken.UpdateProject(ctx, p.ID, update)
	require.ErrorIs(t, err, errBoom)

	_, err = f.projects.UpdateProject(ctx, "00000000-0000-0000-0000-000000000000", update)
	require.ErrorIs(t, err, common.ErrorNotFound)

	assert.Empty(t, f.archiver.keys, "uploads of failed saves must not reach the bucket")
}

func TestUpdateProject_ArchiveKeysPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.projects.CreateProject(ctx, draft(0, 100))
	require.NoError(t, err)
	assert.Empty(t, p.ImageOriginalKey)

	d := draft(0, 100)
	d.ImageRaw = pngBytes(t, 20, 20)
	updated, err := f.projects.UpdateProject(ctx, p.ID, d)
	require.NoError(t, err)
	require.Len(t, f.archiver.keys, 1)
	assert.Equal(t, f.archiver.keys[0], updated.ImageOriginalKey)

	stored, err := f.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ImageOriginalKey, stored.ImageOriginalKey)
	assert.Equal(t, updated.Version, stored.Version)
}
