package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, e *models.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO project_history (id, project_id, seq, amount, new_total, ts, note)
		 SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		 FROM project_history WHERE project_id = ?
		 RETURNING seq`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.ProjectID, e.Amount, e.NewTotal, dbx.FormatSQLiteTime(e.Timestamp), e.Note, e.ProjectID,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) ListByProject(ctx context.Context, projectID string) ([]*models.HistoryEntry, error) {
	query :=
		`SELECT id, project_id, seq, amount, new_total, ts, note
		 FROM project_history WHERE project_id = ?
		 ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.HistoryEntry, 0)
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) Last(ctx context.Context, projectID string) (*models.HistoryEntry, error) {
	query :=
		`SELECT id, project_id, seq, amount, new_total, ts, note
		 FROM project_history WHERE project_id = ?
		 ORDER BY seq DESC LIMIT 1`

	e, err := scanSQLite(r.db.QueryRowContext(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

func scanSQLite(s scanner) (*models.HistoryEntry, error) {
	e := &models.HistoryEntry{}
	var ts string
	if err := s.Scan(&e.ID, &e.ProjectID, &e.Seq, &e.Amount, &e.NewTotal, &ts, &e.Note); err != nil {
		return nil, err
	}

	parsed, err := dbx.ParseSQLiteTime(ts)
	if err != nil {
		return nil, err
	}
	e.Timestamp = parsed
	return e, nil
}
