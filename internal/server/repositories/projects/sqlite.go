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

// SQLiteRepository stores amounts as decimal text and timestamps as
// dbx.SQLiteTimeLayout text.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, p *models.Project) error {
	query :=
		`INSERT INTO projects (` + columns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.BankDetails, string(p.Type), p.TargetAmount, p.CurrentAmount, p.Color,
		p.StartDate, p.EndDate, p.Image, p.QRCode, p.ImageOriginalKey, p.QROriginalKey,
		dbx.FormatSQLiteTime(p.CreatedAt), dbx.FormatSQLiteTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	p.Version = 1
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + columns + ` FROM projects WHERE id = ?`

	p, err := scanSQLite(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, p *models.Project) error {
	query :=
		`UPDATE projects SET
			name = ?, bank_details = ?, type = ?, target_amount = ?, current_amount = ?,
			color = ?, start_date = ?, end_date = ?, image = ?, qr_code = ?,
			image_original_key = ?, qr_original_key = ?, updated_at = ?,
			version = version + 1
		 WHERE id = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, query,
		p.Name, p.BankDetails, string(p.Type), p.TargetAmount, p.CurrentAmount,
		p.Color, p.StartDate, p.EndDate, p.Image, p.QRCode,
		p.ImageOriginalKey, p.QROriginalKey, dbx.FormatSQLiteTime(p.UpdatedAt),
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

func (r *SQLiteRepository) SetOriginalKeys(ctx context.Context, id string, version int64, imageKey, qrKey string) error {
	query :=
		`UPDATE projects SET image_original_key = ?, qr_original_key = ?
		 WHERE id = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, query, imageKey, qrKey, id, version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

func (r *SQLiteRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return common.ErrVersionConflict
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + columns + ` FROM projects ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Project
	for rows.Next() {
		p, err := scanSQLite(rows)
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

func (r *SQLiteRepository) SetCurrentAmount(ctx context.Context, id string, amount decimal.Decimal, updatedAt time.Time) error {
	query :=
		`UPDATE projects SET current_amount = ?, updated_at = ?, version = version + 1
		 WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, amount, dbx.FormatSQLiteTime(updatedAt), id)
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

func scanSQLite(s scanner) (*models.Project, error) {
	p := &models.Project{}
	var typ, createdAt, updatedAt string

	err := s.Scan(
		&p.ID, &p.Name, &p.BankDetails, &typ, &p.TargetAmount, &p.CurrentAmount, &p.Color,
		&p.StartDate, &p.EndDate, &p.Image, &p.QRCode, &p.ImageOriginalKey, &p.QROriginalKey,
		&p.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Type = models.ProjectType(typ)
	if p.CreatedAt, err = dbx.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = dbx.ParseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return p, nil
}
