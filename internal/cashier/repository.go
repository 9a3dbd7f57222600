package cashier

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brecho-erp/brecho-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for cash sessions. The
// one-open-session-per-operator rule lives here as a partial unique index on
// {operator_id, status='aberto'}; concurrent opens race on the constraint,
// not on application logic.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `
	id, operator_id, status, opening_balance, total_sales, total_expenses,
	total_withdrawals, total_reinforcements, sales_dinheiro, sales_cartao,
	sales_pix, sales_transferencia, opened_at, closed_at, counted_balance,
	expected_at_close, discrepancy, notes, version, created_at, updated_at`

// Create inserts an open session.
func (r *Repository) Create(ctx context.Context, s CashSession) (CashSession, error) {
	query := `
		INSERT INTO cash_sessions (
			operator_id, status, opening_balance, total_sales, total_expenses,
			total_withdrawals, total_reinforcements, sales_dinheiro, sales_cartao,
			sales_pix, sales_transferencia, opened_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, 0, 0, 0, 0, 0, 0, 0, 0, $4, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.OperatorID,
		s.Status,
		s.OpeningBalance,
		s.OpenedAt,
	).Scan(&s.ID, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return CashSession{}, ErrSessionAlreadyOpen
		}
		return CashSession{}, err
	}
	return s, nil
}

// Get loads a session and its full movement journal.
func (r *Repository) Get(ctx context.Context, id int64) (CashSession, error) {
	query := `SELECT` + sessionColumns + ` FROM cash_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CashSession{}, ErrNotFound
	}
	if err != nil {
		return CashSession{}, err
	}
	movements, err := r.listMovements(ctx, id)
	if err != nil {
		return CashSession{}, err
	}
	s.Movements = movements
	return s, nil
}

// OpenForOperator returns the operator's currently open session.
func (r *Repository) OpenForOperator(ctx context.Context, operatorID int64) (CashSession, error) {
	query := `SELECT` + sessionColumns + ` FROM cash_sessions WHERE operator_id = $1 AND status = $2`
	s, err := scanSession(r.pool.QueryRow(ctx, query, operatorID, StatusAberto))
	if errors.Is(err, pgx.ErrNoRows) {
		return CashSession{}, ErrNotFound
	}
	if err != nil {
		return CashSession{}, err
	}
	movements, err := r.listMovements(ctx, s.ID)
	if err != nil {
		return CashSession{}, err
	}
	s.Movements = movements
	return s, nil
}

// AppendMovement journals the movement and persists the updated totals in one
// transaction. The movement identifier is assigned here, at the persistence
// boundary.
func (r *Repository) AppendMovement(ctx context.Context, s CashSession, m Movement, expectedVersion int64) (CashSession, Movement, error) {
	m.ID = uuid.New()
	m.SessionID = s.ID

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE cash_sessions
			SET total_sales = $1, total_expenses = $2, total_withdrawals = $3,
				total_reinforcements = $4, sales_dinheiro = $5, sales_cartao = $6,
				sales_pix = $7, sales_transferencia = $8,
				version = version + 1, updated_at = NOW()
			WHERE id = $9 AND version = $10 AND status = $11`,
			s.TotalSales, s.TotalExpenses, s.TotalWithdrawals,
			s.TotalReinforcements, s.SalesByMethod.Dinheiro, s.SalesByMethod.Cartao,
			s.SalesByMethod.Pix, s.SalesByMethod.Transferencia,
			s.ID, expectedVersion, StatusAberto,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.totalsGuardError(ctx, tx, s.ID)
		}
		var method pgtype.Text
		if m.PaymentMethod != nil {
			method = pgtype.Text{String: string(*m.PaymentMethod), Valid: true}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO cash_movements (id, session_id, type, amount, description, payment_method, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID.String(), m.SessionID, m.Type, m.Amount, m.Description, method, m.RecordedAt,
		)
		return err
	})
	if err != nil {
		return CashSession{}, Movement{}, err
	}
	s.Version = expectedVersion + 1
	if n := len(s.Movements); n > 0 {
		s.Movements[n-1] = m
	}
	return s, m, nil
}

// CloseSession persists the frozen snapshot under the version guard.
func (r *Repository) CloseSession(ctx context.Context, s CashSession, expectedVersion int64) (CashSession, error) {
	query := `
		UPDATE cash_sessions
		SET status = $1, closed_at = $2, counted_balance = $3, expected_at_close = $4,
			discrepancy = $5, notes = $6, version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8 AND status = $9
		RETURNING version, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.Status,
		s.ClosedAt,
		s.CountedBalance,
		s.ExpectedAtClose,
		s.Discrepancy,
		s.Notes,
		s.ID,
		expectedVersion,
		StatusAberto,
	).Scan(&s.Version, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, s.ID)
		if getErr != nil {
			return CashSession{}, getErr
		}
		if current.Status != StatusAberto {
			return CashSession{}, ErrSessionClosed
		}
		return CashSession{}, ErrConflict
	}
	if err != nil {
		return CashSession{}, err
	}
	return s, nil
}

func (r *Repository) totalsGuardError(ctx context.Context, tx pgx.Tx, id int64) error {
	var status Status
	err := tx.QueryRow(ctx, `SELECT status FROM cash_sessions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusAberto {
		return ErrSessionClosed
	}
	return ErrConflict
}

func (r *Repository) listMovements(ctx context.Context, sessionID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, type, amount, description, payment_method, recorded_at
		FROM cash_movements WHERE session_id = $1 ORDER BY recorded_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		var rawID string
		var method pgtype.Text
		if err := rows.Scan(&rawID, &m.SessionID, &m.Type, &m.Amount, &m.Description, &method, &m.RecordedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		m.ID = id
		if method.Valid {
			pm := PaymentMethod(method.String)
			m.PaymentMethod = &pm
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (CashSession, error) {
	var s CashSession
	var closedAt pgtype.Timestamptz
	var counted, expected, discrepancy pgtype.Text
	var notes pgtype.Text

	err := row.Scan(
		&s.ID, &s.OperatorID, &s.Status, &s.OpeningBalance, &s.TotalSales, &s.TotalExpenses,
		&s.TotalWithdrawals, &s.TotalReinforcements, &s.SalesByMethod.Dinheiro, &s.SalesByMethod.Cartao,
		&s.SalesByMethod.Pix, &s.SalesByMethod.Transferencia, &s.OpenedAt, &closedAt, &counted,
		&expected, &discrepancy, &notes, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return CashSession{}, err
	}
	if closedAt.Valid {
		s.ClosedAt = &closedAt.Time
	}
	if notes.Valid {
		s.Notes = notes.String
	}
	var parseErr error
	if s.CountedBalance, parseErr = nullableDecimal(counted); parseErr != nil {
		return CashSession{}, parseErr
	}
	if s.ExpectedAtClose, parseErr = nullableDecimal(expected); parseErr != nil {
		return CashSession{}, parseErr
	}
	if s.Discrepancy, parseErr = nullableDecimal(discrepancy); parseErr != nil {
		return CashSession{}, parseErr
	}
	return s, nil
}

func nullableDecimal(v pgtype.Text) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
