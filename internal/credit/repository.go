package credit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for credits.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const creditColumns = `
	id, fornecedora_id, sale_id, product_id, sale_value, percentage, amount,
	status, sale_date, maturation_date, released_at, used_at, paid_at,
	usage_mode, version, created_at, updated_at`

// Create inserts a pending credit.
func (r *Repository) Create(ctx context.Context, c Credit) (Credit, error) {
	query := `
		INSERT INTO credits (
			fornecedora_id, sale_id, product_id, sale_value, percentage, amount,
			status, sale_date, maturation_date, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.FornecedoraID,
		c.SaleID,
		c.ProductID,
		c.SaleValue,
		c.Percentage,
		c.Amount,
		c.Status,
		c.SaleDate,
		c.MaturationDate,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}

// Get retrieves a credit by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Credit, error) {
	query := `SELECT` + creditColumns + ` FROM credits WHERE id = $1`
	c, err := scanCredit(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Credit{}, ErrNotFound
	}
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}

// ListByFornecedora returns all credits owned by a fornecedora, newest first.
func (r *Repository) ListByFornecedora(ctx context.Context, fornecedoraID int64) ([]Credit, error) {
	query := `SELECT` + creditColumns + ` FROM credits WHERE fornecedora_id = $1 ORDER BY sale_date DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, fornecedoraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCredits(rows)
}

// ListMaturedPending returns pending credits whose maturation date has passed.
func (r *Repository) ListMaturedPending(ctx context.Context, asOf time.Time) ([]Credit, error) {
	query := `SELECT` + creditColumns + ` FROM credits WHERE status = $1 AND maturation_date <= $2 ORDER BY maturation_date, id`
	rows, err := r.pool.Query(ctx, query, StatusPending, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCredits(rows)
}

// UpdateSnapshot persists a transitioned snapshot with an optimistic version
// check. A version mismatch on an existing row returns ErrConflict.
func (r *Repository) UpdateSnapshot(ctx context.Context, c Credit, expectedVersion int64) (Credit, error) {
	query := `
		UPDATE credits
		SET status = $1, released_at = $2, used_at = $3, paid_at = $4,
			usage_mode = $5, version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
		RETURNING version, updated_at`

	var usageMode pgtype.Text
	if c.UsageMode != "" {
		usageMode = pgtype.Text{String: string(c.UsageMode), Valid: true}
	}

	err := r.pool.QueryRow(ctx, query,
		c.Status,
		c.ReleasedAt,
		c.UsedAt,
		c.PaidAt,
		usageMode,
		c.ID,
		expectedVersion,
	).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credits WHERE id = $1)`, c.ID).Scan(&exists); checkErr != nil {
			return Credit{}, checkErr
		}
		if exists {
			return Credit{}, ErrConflict
		}
		return Credit{}, ErrNotFound
	}
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}

func scanCredit(row pgx.Row) (Credit, error) {
	var c Credit
	var releasedAt, usedAt, paidAt pgtype.Timestamptz
	var usageMode pgtype.Text

	err := row.Scan(
		&c.ID, &c.FornecedoraID, &c.SaleID, &c.ProductID,
		&c.SaleValue, &c.Percentage, &c.Amount,
		&c.Status, &c.SaleDate, &c.MaturationDate,
		&releasedAt, &usedAt, &paidAt,
		&usageMode, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Credit{}, err
	}
	if releasedAt.Valid {
		c.ReleasedAt = &releasedAt.Time
	}
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	if paidAt.Valid {
		c.PaidAt = &paidAt.Time
	}
	if usageMode.Valid {
		c.UsageMode = UsageMode(usageMode.String)
	}
	return c, nil
}

func collectCredits(rows pgx.Rows) ([]Credit, error) {
	var out []Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
