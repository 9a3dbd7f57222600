package exchange

import (
	"context"
	"time"
)

// RepositoryPort defines data access methods for trocas.
type RepositoryPort interface {
	Create(ctx context.Context, t Troca) (Troca, error)
	Get(ctx context.Context, id int64) (Troca, error)
	ListBySale(ctx context.Context, saleID int64) ([]Troca, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Troca, error)
	// UpdateSnapshot persists a transitioned snapshot guarded by the version it
	// was derived from. Returns ErrConflict when another writer won.
	UpdateSnapshot(ctx context.Context, t Troca, expectedVersion int64) (Troca, error)
}

// IdempotencyPort guards financial transitions against double-apply on retry.
// Delete rolls a key back when the guarded operation fails, so the caller can
// retry with the same key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "exchange"

// Service handles troca business logic.
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

// Request registers a new troca in solicitado state.
func (s *Service) Request(ctx context.Context, in Request) (Troca, error) {
	t, err := New(in, s.now())
	if err != nil {
		return Troca{}, err
	}
	return s.repo.Create(ctx, t)
}

// Get returns one troca.
func (s *Service) Get(ctx context.Context, id int64) (Troca, error) {
	return s.repo.Get(ctx, id)
}

// ListBySale returns every troca filed against a sale.
func (s *Service) ListBySale(ctx context.Context, saleID int64) ([]Troca, error) {
	return s.repo.ListBySale(ctx, saleID)
}

// ListByStatus pages through trocas in one lifecycle stage.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Troca, error) {
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// Preview runs the rule matrix without touching state so staff can see every
// violation before deciding.
func (s *Service) Preview(ctx context.Context, id int64) ([]string, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Validate(t, s.now()), nil
}

// Approve validates and approves a troca.
func (s *Service) Approve(ctx context.Context, id, staffID int64, idemKey string) (Troca, error) {
	return s.transition(ctx, id, idemKey, func(t Troca) (Troca, error) {
		return t.Approve(staffID, s.now())
	})
}

// Reject refuses a troca with a reason.
func (s *Service) Reject(ctx context.Context, id, staffID int64, reason string) (Troca, error) {
	return s.transition(ctx, id, "", func(t Troca) (Troca, error) {
		return t.Reject(staffID, reason)
	})
}

// Complete finishes an approved troca once the settlement happened.
func (s *Service) Complete(ctx context.Context, id int64, idemKey string) (Troca, error) {
	return s.transition(ctx, id, idemKey, func(t Troca) (Troca, error) {
		return t.Complete(s.now())
	})
}

// Cancel aborts a troca from solicitado or aprovado.
func (s *Service) Cancel(ctx context.Context, id int64) (Troca, error) {
	return s.transition(ctx, id, "", func(t Troca) (Troca, error) {
		return t.Cancel(s.now())
	})
}

func (s *Service) transition(ctx context.Context, id int64, idemKey string, fn func(Troca) (Troca, error)) (Troca, error) {
	insertedKey := false
	if s.idem != nil && idemKey != "" {
		if err := s.idem.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			return Troca{}, err
		}
		insertedKey = true
	}
	rollbackKey := func() {
		if insertedKey {
			_ = s.idem.Delete(ctx, idemKey)
		}
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		rollbackKey()
		return Troca{}, err
	}
	next, err := fn(t)
	if err != nil {
		rollbackKey()
		return Troca{}, err
	}
	updated, err := s.repo.UpdateSnapshot(ctx, next, t.Version)
	if err != nil {
		rollbackKey()
		return Troca{}, err
	}
	return updated, nil
}
