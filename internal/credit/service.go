package credit

import (
	"context"
	"errors"
	"time"
)

// RepositoryPort defines data access methods for credits.
type RepositoryPort interface {
	Create(ctx context.Context, c Credit) (Credit, error)
	Get(ctx context.Context, id int64) (Credit, error)
	ListByFornecedora(ctx context.Context, fornecedoraID int64) ([]Credit, error)
	ListMaturedPending(ctx context.Context, asOf time.Time) ([]Credit, error)
	// UpdateSnapshot persists a transitioned snapshot guarded by the version the
	// snapshot was derived from. Returns ErrConflict when another writer won.
	UpdateSnapshot(ctx context.Context, c Credit, expectedVersion int64) (Credit, error)
}

// IdempotencyPort guards financial transitions against double-apply on retry.
// Delete rolls a key back when the guarded operation fails, so the caller can
// retry with the same key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// SummaryCachePort caches per-fornecedora credit summaries and is invalidated
// after every transition.
type SummaryCachePort interface {
	Fetch(ctx context.Context, fornecedoraID int64, loader func(context.Context) (Summary, error)) (Summary, error)
	Invalidate(ctx context.Context, fornecedoraID int64) error
}

const idempotencyModule = "credit"

// Service handles consignment credit business logic.
type Service struct {
	repo  RepositoryPort
	idem  IdempotencyPort
	cache SummaryCachePort
	now   func() time.Time
}

// NewService builds a Service instance. idem and cache may be nil.
func NewService(repo RepositoryPort, idem IdempotencyPort, cache SummaryCachePort) *Service {
	return &Service{repo: repo, idem: idem, cache: cache, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFromSale records the credit generated by a consigned sale.
func (s *Service) CreateFromSale(ctx context.Context, in SaleDetails) (Credit, error) {
	c, err := NewFromSale(in)
	if err != nil {
		return Credit{}, err
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Credit{}, err
	}
	s.invalidate(ctx, created.FornecedoraID)
	return created, nil
}

// Get returns one credit.
func (s *Service) Get(ctx context.Context, id int64) (Credit, error) {
	return s.repo.Get(ctx, id)
}

// ListByFornecedora returns all credits for a fornecedora, newest first.
func (s *Service) ListByFornecedora(ctx context.Context, fornecedoraID int64) ([]Credit, error) {
	return s.repo.ListByFornecedora(ctx, fornecedoraID)
}

// Release transitions one matured credit to released.
func (s *Service) Release(ctx context.Context, id int64) (Credit, error) {
	return s.transition(ctx, id, "", func(c Credit) (Credit, error) {
		return c.Release(s.now())
	})
}

// Use marks a released credit as spent, recording the usage mode.
func (s *Service) Use(ctx context.Context, id int64, mode UsageMode, idemKey string) (Credit, error) {
	return s.transition(ctx, id, idemKey, func(c Credit) (Credit, error) {
		return c.Use(mode, s.now())
	})
}

// PayOut settles a released credit in cash.
func (s *Service) PayOut(ctx context.Context, id int64, idemKey string) (Credit, error) {
	return s.transition(ctx, id, idemKey, func(c Credit) (Credit, error) {
		return c.PayOut(s.now())
	})
}

// ReleaseMatured releases every pending credit whose maturation date has
// passed. Races between concurrent sweeps are resolved by the version check:
// a lost race on one credit is skipped, not treated as a sweep failure.
func (s *Service) ReleaseMatured(ctx context.Context) (released int, err error) {
	now := s.now()
	matured, err := s.repo.ListMaturedPending(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, c := range matured {
		next, err := c.Release(now)
		if err != nil {
			continue
		}
		if _, err := s.repo.UpdateSnapshot(ctx, next, c.Version); err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
				continue
			}
			return released, err
		}
		released++
		s.invalidate(ctx, c.FornecedoraID)
	}
	return released, nil
}

// SummaryFor aggregates a fornecedora's credit balances per status. Results
// are cached; any transition on her credits invalidates the entry.
func (s *Service) SummaryFor(ctx context.Context, fornecedoraID int64) (Summary, error) {
	loader := func(ctx context.Context) (Summary, error) {
		credits, err := s.repo.ListByFornecedora(ctx, fornecedoraID)
		if err != nil {
			return Summary{}, err
		}
		return Summarize(fornecedoraID, credits), nil
	}
	if s.cache == nil {
		return loader(ctx)
	}
	return s.cache.Fetch(ctx, fornecedoraID, loader)
}

func (s *Service) transition(ctx context.Context, id int64, idemKey string, fn func(Credit) (Credit, error)) (Credit, error) {
	insertedKey := false
	if s.idem != nil && idemKey != "" {
		if err := s.idem.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			return Credit{}, err
		}
		insertedKey = true
	}
	rollbackKey := func() {
		if insertedKey {
			_ = s.idem.Delete(ctx, idemKey)
		}
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		rollbackKey()
		return Credit{}, err
	}
	next, err := fn(c)
	if err != nil {
		rollbackKey()
		return Credit{}, err
	}
	updated, err := s.repo.UpdateSnapshot(ctx, next, c.Version)
	if err != nil {
		rollbackKey()
		return Credit{}, err
	}
	s.invalidate(ctx, updated.FornecedoraID)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, fornecedoraID int64) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, fornecedoraID)
	}
}
