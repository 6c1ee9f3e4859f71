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
	"github.com/jackc/pgx/v5/pgconn"
)

// sqlStateUniqueViolation is raised when two transactions race for the same
// (project_id, seq).
const sqlStateUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO project_history (id, project_id, seq, amount, new_total, ts, note)
		 SELECT $1::uuid, $2::uuid, COALESCE(MAX(seq), 0) + 1, $3::numeric, $4::numeric, $5::timestamptz, $6::text
		 FROM project_history WHERE project_id = $2::uuid
		 RETURNING seq`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.ProjectID, e.Amount, e.NewTotal, e.Timestamp, e.Note,
	).Scan(&e.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListByProject(ctx context.Context, projectID string) ([]*models.HistoryEntry, error) {
	query :=
		`SELECT id, project_id, seq, amount, new_total, ts, note
		 FROM project_history WHERE project_id = $1
		 ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.HistoryEntry, 0)
	for rows.Next() {
		e, err := scanPostgres(rows)
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

func (r *PostgresRepository) Last(ctx context.Context, projectID string) (*models.HistoryEntry, error) {
	query :=
		`SELECT id, project_id, seq, amount, new_total, ts, note
		 FROM project_history WHERE project_id = $1
		 ORDER BY seq DESC LIMIT 1`

	e, err := scanPostgres(r.db.QueryRowContext(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

func scanPostgres(s scanner) (*models.HistoryEntry, error) {
	e := &models.HistoryEntry{}
	if err := s.Scan(&e.ID, &e.ProjectID, &e.Seq, &e.Amount, &e.NewTotal, &e.Timestamp, &e.Note); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
