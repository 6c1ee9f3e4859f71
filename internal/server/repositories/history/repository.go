// Package history persists the append-only contribution log of each project.
package history

import (
	"context"

	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
)

type Repository interface {
	// Append stores e, assigning e.ID when empty and the next per-project e.Seq.
	Append(ctx context.Context, e *models.HistoryEntry) error
	// ListByProject returns entries in insertion order (Seq ascending).
	ListByProject(ctx context.Context, projectID string) ([]*models.HistoryEntry, error)
	// Last returns the entry with the highest Seq, or common.ErrorNotFound.
	Last(ctx context.Context, projectID string) (*models.HistoryEntry, error)
}

type scanner interface {
	Scan(dest ...any) error
}
