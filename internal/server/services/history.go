package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
)

// HistoryService reads a project's contribution log.
type HistoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewHistoryService(db *sql.DB, m repomanager.RepositoryManager) *HistoryService {
	return &HistoryService{db: db, repomanager: m}
}

// ListHistory returns the project's entries newest first. Entries sharing a
// timestamp keep their insertion order. Unknown projects yield
// common.ErrorNotFound; a project without history yields an empty slice.
func (s *HistoryService) ListHistory(ctx context.Context, projectID string) ([]*models.HistoryEntry, error) {
	if _, err := s.repomanager.Projects(s.db).GetByID(ctx, projectID); err != nil {
		return nil, common.WrapStore("get project", err)
	}

	entries, err := s.repomanager.History(s.db).ListByProject(ctx, projectID)
	if err != nil {
		return nil, common.WrapStore("list history", err)
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}

	models.SortNewestFirst(entries)
	return entries, nil
}
