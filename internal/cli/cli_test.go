package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/auth"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fundkeeper/internal/server/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func stubTerminal(t *testing.T, tty bool, pw string) {
	t.Helper()
	origRead, origTTY := readPassword, isTerminal
	readPassword = func(int) ([]byte, error) { return []byte(pw), nil }
	isTerminal = func(int) bool { return tty }
	t.Cleanup(func() { readPassword, isTerminal = origRead, origTTY })
}

// ---- token ----

func TestToken_WithSecretFlag(t *testing.T) {
	stubTerminal(t, false, "")

	out, err := run(t, "token", "--subject", "alice", "--secret", "s3cret", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.ParseToken(strings.TrimSpace(out), []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestToken_PromptsOnTerminal(t *testing.T) {
	stubTerminal(t, true, "typed-secret\n")

	out, err := run(t, "token", "--subject", "bob")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	_, err = auth.ParseToken(lines[len(lines)-1], []byte("typed-secret"))
	require.NoError(t, err)
}

func TestToken_FallsBackToConfiguredSecret(t *testing.T) {
	stubTerminal(t, false, "")
	t.Setenv("FUNDKEEPER_SECRET_KEY", "from-env")

	out, err := run(t, "token", "--subject", "carol")
	require.NoError(t, err)

	_, err = auth.ParseToken(strings.TrimSpace(out), []byte("from-env"))
	require.NoError(t, err)
}

func TestToken_RequiresSubject(t *testing.T) {
	stubTerminal(t, false, "")
	_, err := run(t, "token", "--secret", "x")
	require.Error(t, err)
}

// ---- normalize ----

func TestNormalize_WritesJPEG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	outPath := filepath.Join(dir, "out.jpg")

	img := image.NewNRGBA(image.Rect(0, 0, 1000, 500))
	for x := 0; x < 1000; x++ {
		img.Set(x, 10, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0o600))

	out, err := run(t, "normalize", in, outPath, "--max-width", "400")
	require.NoError(t, err)
	assert.Contains(t, out, "image/jpeg 400x200")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(in, []byte("not an image"), 0o600))

	_, err := run(t, "normalize", in, filepath.Join(dir, "out.jpg"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out.jpg"))
}

// ---- audit ----

func seedDatabase(t *testing.T) (dsn, projectID string) {
	t.Helper()
	ctx := context.Background()
	dsn = filepath.Join(t.TempDir(), "fund.db")

	db, err := dbx.Open(ctx, dbx.DriverSQLite, dsn)
	require.NoError(t, err)
	defer db.Close()

	rm := repomanager.NewSQLiteRepositoryManager()
	require.NoError(t, rm.RunMigrations(ctx, db))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	ps := services.NewProjectService(db, rm, cfg, nil, logging.Nop{})

	p, err := ps.CreateProject(ctx, &models.ProjectDraft{
		Name:          "Well",
		Type:          models.ProjectTypeFixed,
		TargetAmount:  decimal.NewFromInt(1000),
		CurrentAmount: decimal.NewFromInt(250),
		Color:         "#00aa00",
		StartDate:     models.NewDate(2025, time.May, 1),
	})
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE projects SET current_amount = ? WHERE id = ?`, "999", p.ID)
	require.NoError(t, err)

	return dsn, p.ID
}

func TestAudit_ReportsThenRepairs(t *testing.T) {
	dsn, id := seedDatabase(t)
	t.Setenv("FUNDKEEPER_DATABASE_DRIVER", dbx.DriverSQLite)
	t.Setenv("FUNDKEEPER_DATABASE_DSN", dsn)

	out, err := run(t, "audit")
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, out, id+"\tstored=999\texpected=250")

	out, err = run(t, "audit", "--repair")
	require.NoError(t, err)
	assert.Contains(t, out, "repaired 1 project(s)")

	out, err = run(t, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "all projects consistent")
}

func TestAudit_BadConfigFile(t *testing.T) {
	_, err := run(t, "audit", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
