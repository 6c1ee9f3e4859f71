// Package projects persists fundraising projects. Each dialect has its own
// implementation bound to a dbx.DBTX so that callers can run it inside a
// transaction.
package projects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

// columns is the shared select/insert column order for both dialects.
const columns = `id, name, bank_details, type, target_amount, current_amount, color,
	start_date, end_date, image, qr_code, image_original_key, qr_original_key,
	version, created_at, updated_at`

type Repository interface {
	// Create inserts p. p.ID must be set by the caller; p.Version becomes 1.
	Create(ctx context.Context, p *models.Project) error
	// GetByID returns common.ErrorNotFound when the project is absent.
	GetByID(ctx context.Context, id string) (*models.Project, error)
	// Update overwrites the mutable fields if the stored version still equals
	// p.Version, then increments p.Version. A stale version yields
	// common.ErrVersionConflict, a missing row common.ErrorNotFound.
	Update(ctx context.Context, p *models.Project) error
	// List returns all projects, oldest first.
	List(ctx context.Context) ([]*models.Project, error)
	// SetCurrentAmount rewrites the cached current amount and bumps the version.
	SetCurrentAmount(ctx context.Context, id string, amount decimal.Decimal, updatedAt time.Time) error
	// SetOriginalKeys records archive keys while the row is still at version.
	// The version is left unchanged. Errors as for Update.
	SetOriginalKeys(ctx context.Context, id string, version int64, imageKey, qrKey string) error
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
