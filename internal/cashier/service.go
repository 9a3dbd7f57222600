package cashier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort defines data access methods for cash sessions.
type RepositoryPort interface {
	Create(ctx context.Context, s CashSession) (CashSession, error)
	// Get loads a session including its full movement journal.
	Get(ctx context.Context, id int64) (CashSession, error)
	OpenForOperator(ctx context.Context, operatorID int64) (CashSession, error)
	// AppendMovement persists the journal entry and the updated running totals
	// in one transaction, guarded by the version the snapshot was derived from.
	AppendMovement(ctx context.Context, s CashSession, m Movement, expectedVersion int64) (CashSession, Movement, error)
	// CloseSession persists the frozen snapshot under the same version guard.
	CloseSession(ctx context.Context, s CashSession, expectedVersion int64) (CashSession, error)
}

// IdempotencyPort guards financial operations against double-apply on retry.
// Delete rolls a key back when the guarded operation fails, so the caller can
// retry with the same key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "cashier"

// Service handles register session business logic.
type Service struct {
	repo RepositoryPort
	idem IdempotencyPort
	now  func() time.Time
}

// NewService builds a Service instance. idem may be nil.
func NewService(repo RepositoryPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, idem: idem, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Open starts a session. The storage layer enforces at most one open session
// per operator and reports ErrSessionAlreadyOpen on the unique violation.
func (s *Service) Open(ctx context.Context, operatorID int64, openingBalance decimal.Decimal) (CashSession, error) {
	sess, err := Open(operatorID, openingBalance, s.now())
	if err != nil {
		return CashSession{}, err
	}
	return s.repo.Create(ctx, sess)
}

// Get returns one session with its journal.
func (s *Service) Get(ctx context.Context, id int64) (CashSession, error) {
	return s.repo.Get(ctx, id)
}

// OpenForOperator returns the operator's currently open session.
func (s *Service) OpenForOperator(ctx context.Context, operatorID int64) (CashSession, error) {
	return s.repo.OpenForOperator(ctx, operatorID)
}

// RecordMovement journals a movement and updates the running totals. Journal
// append and total update land in one transaction: both or neither.
func (s *Service) RecordMovement(ctx context.Context, sessionID int64, in MovementInput, idemKey string) (CashSession, Movement, error) {
	rollbackKey, err := s.guard(ctx, idemKey)
	if err != nil {
		return CashSession{}, Movement{}, err
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		rollbackKey()
		return CashSession{}, Movement{}, err
	}
	next, m, err := sess.Record(in, s.now())
	if err != nil {
		rollbackKey()
		return CashSession{}, Movement{}, err
	}
	updated, persisted, err := s.repo.AppendMovement(ctx, next, m, sess.Version)
	if err != nil {
		rollbackKey()
		return CashSession{}, Movement{}, err
	}
	return updated, persisted, nil
}

// Close reconciles and freezes a session exactly once.
func (s *Service) Close(ctx context.Context, sessionID int64, countedBalance decimal.Decimal, notes, idemKey string) (CashSession, error) {
	rollbackKey, err := s.guard(ctx, idemKey)
	if err != nil {
		return CashSession{}, err
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		rollbackKey()
		return CashSession{}, err
	}
	next, err := sess.Close(countedBalance, notes, s.now())
	if err != nil {
		rollbackKey()
		return CashSession{}, err
	}
	closed, err := s.repo.CloseSession(ctx, next, sess.Version)
	if err != nil {
		rollbackKey()
		return CashSession{}, err
	}
	return closed, nil
}

// guard consumes the idempotency key and returns the rollback that releases
// it again if the guarded operation fails.
func (s *Service) guard(ctx context.Context, idemKey string) (func(), error) {
	if s.idem == nil || idemKey == "" {
		return func() {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
		return nil, err
	}
	return func() { _ = s.idem.Delete(ctx, idemKey) }, nil
}
