package exchange

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for trocas.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const trocaColumns = `
	id, sale_id, customer_id, product_id, replacement_product_id,
	type, channel, reason, original_value, replacement_value, difference,
	refunded_amount, status, sale_date, requested_at, approved_by, approved_at,
	rejected_by, reject_reason, completed_at, cancelled_at, notes, version,
	created_at, updated_at`

// Create inserts a solicitado troca.
func (r *Repository) Create(ctx context.Context, t Troca) (Troca, error) {
	query := `
		INSERT INTO trocas (
			sale_id, customer_id, product_id, replacement_product_id,
			type, channel, reason, original_value, replacement_value, difference,
			refunded_amount, status, sale_date, requested_at, notes,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at`

	var replacementID pgtype.Int8
	if t.ReplacementProductID != nil {
		replacementID = pgtype.Int8{Int64: *t.ReplacementProductID, Valid: true}
	}

	err := r.pool.QueryRow(ctx, query,
		t.SaleID,
		t.CustomerID,
		t.ProductID,
		replacementID,
		t.Type,
		t.Channel,
		t.Reason,
		t.OriginalValue,
		t.ReplacementValue,
		t.Difference,
		t.RefundedAmount,
		t.Status,
		t.SaleDate,
		t.RequestedAt,
		t.Notes,
	).Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Troca{}, err
	}
	return t, nil
}

// Get retrieves a troca by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Troca, error) {
	query := `SELECT` + trocaColumns + ` FROM trocas WHERE id = $1`
	t, err := scanTroca(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Troca{}, ErrNotFound
	}
	if err != nil {
		return Troca{}, err
	}
	return t, nil
}

// ListBySale returns every troca filed against a sale, oldest first.
func (r *Repository) ListBySale(ctx context.Context, saleID int64) ([]Troca, error) {
	query := `SELECT` + trocaColumns + ` FROM trocas WHERE sale_id = $1 ORDER BY requested_at, id`
	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrocas(rows)
}

// ListByStatus pages trocas in one lifecycle stage, newest requests first.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Troca, error) {
	query := `SELECT` + trocaColumns + ` FROM trocas WHERE status = $1 ORDER BY requested_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrocas(rows)
}

// UpdateSnapshot persists a transitioned snapshot with an optimistic version
// check. A version mismatch on an existing row returns ErrConflict.
func (r *Repository) UpdateSnapshot(ctx context.Context, t Troca, expectedVersion int64) (Troca, error) {
	query := `
		UPDATE trocas
		SET status = $1, approved_by = $2, approved_at = $3, rejected_by = $4,
			reject_reason = $5, completed_at = $6, cancelled_at = $7, notes = $8,
			version = version + 1, updated_at = NOW()
		WHERE id = $9 AND version = $10
		RETURNING version, updated_at`

	err := r.pool.QueryRow(ctx, query,
		t.Status,
		t.ApprovedBy,
		t.ApprovedAt,
		t.RejectedBy,
		t.RejectReason,
		t.CompletedAt,
		t.CancelledAt,
		t.Notes,
		t.ID,
		expectedVersion,
	).Scan(&t.Version, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trocas WHERE id = $1)`, t.ID).Scan(&exists); checkErr != nil {
			return Troca{}, checkErr
		}
		if exists {
			return Troca{}, ErrConflict
		}
		return Troca{}, ErrNotFound
	}
	if err != nil {
		return Troca{}, err
	}
	return t, nil
}

func scanTroca(row pgx.Row) (Troca, error) {
	var t Troca
	var replacementID, approvedBy, rejectedBy pgtype.Int8
	var approvedAt, completedAt, cancelledAt pgtype.Timestamptz
	var rejectReason, notes pgtype.Text

	err := row.Scan(
		&t.ID, &t.SaleID, &t.CustomerID, &t.ProductID, &replacementID,
		&t.Type, &t.Channel, &t.Reason, &t.OriginalValue, &t.ReplacementValue, &t.Difference,
		&t.RefundedAmount, &t.Status, &t.SaleDate, &t.RequestedAt, &approvedBy, &approvedAt,
		&rejectedBy, &rejectReason, &completedAt, &cancelledAt, &notes, &t.Version,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Troca{}, err
	}
	if replacementID.Valid {
		t.ReplacementProductID = &replacementID.Int64
	}
	if approvedBy.Valid {
		t.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		t.ApprovedAt = &approvedAt.Time
	}
	if rejectedBy.Valid {
		t.RejectedBy = &rejectedBy.Int64
	}
	if rejectReason.Valid {
		t.RejectReason = rejectReason.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		t.CancelledAt = &cancelledAt.Time
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	return t, nil
}

func collectTrocas(rows pgx.Rows) ([]Troca, error) {
	var out []Troca
	for rows.Next() {
		t, err := scanTroca(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
