package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Project) error {
	query :=
		`INSERT INTO projects (` + columns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)
		 RETURNING version`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.BankDetails, string(p.Type), p.TargetAmount, p.CurrentAmount, p.Color,
		p.StartDate, p.EndDate, p.Image, p.QRCode, p.ImageOriginalKey, p.QROriginalKey,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + columns + ` FROM projects WHERE id = $1`

	p, err := scanPostgres(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Project) error {
	query :=
		`UPDATE projects SET
			name = $1, bank_details = $2, type = $3, target_amount = $4, current_amount = $5,
			color = $6, start_date = $7, end_date = $8, image = $9, qr_code = $10,
			image_original_key = $11, qr_original_key = $12, updated_at = $13,
			version = version + 1
		 WHERE id = $14 AND version = $15`

	res, err := r.db.ExecContext(ctx, query,
		p.Name, p.BankDetails, string(p.Type), p.TargetAmount, p.CurrentAmount,
		p.Color, p.StartDate, p.EndDate, p.Image, p.QRCode,
		p.ImageOriginalKey, p.QROriginalKey, p.UpdatedAt,
		p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if err := r.checkAffected(ctx, res, p.ID); err != nil {
		return err
	}

	p.Version++
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + columns + ` FROM projects ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Project
	for rows.Next() {
		p, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) SetCurrentAmount(ctx context.Context, id string, amount decimal.Decimal, updatedAt time.Time) error {
	query :=
		`UPDATE projects SET current_amount = $1, updated_at = $2, version = version + 1
		 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, amount, updatedAt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetOriginalKeys(ctx context.Context, id string, version int64, imageKey, qrKey string) error {
	query :=
		`UPDATE projects SET image_original_key = $1, qr_original_key = $2
		 WHERE id = $3 AND version = $4`

	res, err := r.db.ExecContext(ctx, query, imageKey, qrKey, id, version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

// checkAffected tells a stale version apart from a missing row.
func (r *PostgresRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return common.ErrorNotFound
	}
	return common.ErrVersionConflict
}

func scanPostgres(s scanner) (*models.Project, error) {
	p := &models.Project{}
	var typ string

	err := s.Scan(
		&p.ID, &p.Name, &p.BankDetails, &typ, &p.TargetAmount, &p.CurrentAmount, &p.Color,
		&p.StartDate, &p.EndDate, &p.Image, &p.QRCode, &p.ImageOriginalKey, &p.QROriginalKey,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Type = models.ProjectType(typ)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
