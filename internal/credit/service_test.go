package credit

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brecho-erp/brecho-erp/internal/shared"
	_ "github.com/brecho-erp/brecho-erp/testing"
)

type memoryCreditRepo struct {
	credits map[int64]Credit
	nextID  int64
}

func newMemoryCreditRepo() *memoryCreditRepo {
	return &memoryCreditRepo{credits: make(map[int64]Credit)}
}

func (r *memoryCreditRepo) Create(ctx context.Context, c Credit) (Credit, error) {
	r.nextID++
	c.ID = r.nextID
	c.Version = 1
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.credits[c.ID] = c
	return c, nil
}

func (r *memoryCreditRepo) Get(ctx context.Context, id int64) (Credit, error) {
	c, ok := r.credits[id]
	if !ok {
		return Credit{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryCreditRepo) ListByFornecedora(ctx context.Context, fornecedoraID int64) ([]Credit, error) {
	var out []Credit
	for _, c := range r.credits {
		if c.FornecedoraID == fornecedoraID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryCreditRepo) ListMaturedPending(ctx context.Context, asOf time.Time) ([]Credit, error) {
	var out []Credit
	for _, c := range r.credits {
		if c.Status == StatusPending && !c.MaturationDate.After(asOf) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryCreditRepo) UpdateSnapshot(ctx context.Context, c Credit, expectedVersion int64) (Credit, error) {
	current, ok := r.credits[c.ID]
	if !ok {
		return Credit{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return Credit{}, ErrConflict
	}
	c.Version = expectedVersion + 1
	c.UpdatedAt = time.Now()
	r.credits[c.ID] = c
	return c, nil
}

type fakeIdem struct {
	seen map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[module+":"+key] = true
	return nil
}

func (f *fakeIdem) Delete(ctx context.Context, key string) error {
	for k := range f.seen {
		if strings.HasSuffix(k, ":"+key) {
			delete(f.seen, k)
		}
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryCreditRepo) {
	t.Helper()
	repo := newMemoryCreditRepo()
	svc := NewService(repo, &fakeIdem{}, nil)
	return svc, repo
}

func seedCredit(t *testing.T, svc *Service, fornecedoraID int64, value string, pct int64, saleDate time.Time) Credit {
	t.Helper()
	c, err := svc.CreateFromSale(context.Background(), SaleDetails{
		FornecedoraID: fornecedoraID,
		SaleID:        fornecedoraID * 100,
		ProductID:     fornecedoraID*100 + 1,
		SaleValue:     decimal.RequireFromString(value),
		Percentage:    decimal.NewFromInt(pct),
		SaleDate:      saleDate,
	})
	require.NoError(t, err)
	return c
}

func TestServiceReleaseLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := seedCredit(t, svc, 7, "100.00", 60, sold)

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 29) })
	_, err := svc.Release(ctx, c.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 30) })
	released, err := svc.Release(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, released.Status)
	require.Equal(t, int64(2), released.Version)

	// A second release hits the transition guard, not the storage race.
	_, err = svc.Release(ctx, c.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestServiceUseIsIdempotencyGuarded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := seedCredit(t, svc, 7, "80.00", 50, sold)

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 31) })
	_, err := svc.Release(ctx, c.ID)
	require.NoError(t, err)

	used, err := svc.Use(ctx, c.ID, UsageModeProducts, "retry-key-1")
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)

	_, err = svc.Use(ctx, c.ID, UsageModeProducts, "retry-key-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestServicePayOut(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := seedCredit(t, svc, 3, "200.00", 40, sold)

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 45) })
	_, err := svc.PayOut(ctx, c.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition, "payout requires released")

	_, err = svc.Release(ctx, c.ID)
	require.NoError(t, err)

	paid, err := svc.PayOut(ctx, c.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
}

func TestReleaseMaturedSweep(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	matured1 := seedCredit(t, svc, 1, "50.00", 50, sold)
	matured2 := seedCredit(t, svc, 2, "70.00", 50, sold.AddDate(0, 0, -10))
	young := seedCredit(t, svc, 3, "90.00", 50, sold.AddDate(0, 0, 20))

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 30) })
	released, err := svc.ReleaseMatured(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, released)

	for _, id := range []int64{matured1.ID, matured2.ID} {
		c, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, StatusReleased, c.Status)
	}
	c, err := repo.Get(ctx, young.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)

	// Second sweep finds nothing left to do.
	released, err = svc.ReleaseMatured(ctx)
	require.NoError(t, err)
	require.Zero(t, released)
}

func TestSummaryFor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	seedCredit(t, svc, 9, "100.00", 60, sold) // stays pending
	released := seedCredit(t, svc, 9, "50.00", 50, sold.AddDate(0, 0, -40))
	other := seedCredit(t, svc, 8, "30.00", 50, sold)
	_ = other

	svc.WithNow(func() time.Time { return sold })
	_, err := svc.Release(ctx, released.ID)
	require.NoError(t, err)

	sum, err := svc.SummaryFor(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Count)
	require.Equal(t, "60.00", sum.Pending.StringFixed(2))
	require.Equal(t, "25.00", sum.Released.StringFixed(2))
	require.Equal(t, "28.75", sum.SpendableWithBonus.StringFixed(2))
	require.Equal(t, "0.00", sum.Used.StringFixed(2))
}

func TestServiceFailedUseReleasesIdempotencyKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sold := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := seedCredit(t, svc, 7, "80.00", 50, sold)

	svc.WithNow(func() time.Time { return sold.AddDate(0, 0, 31) })

	// First attempt fails before anything is applied: the credit is still
	// pending, so the key must be handed back for the retry.
	_, err := svc.Use(ctx, c.ID, UsageModeProducts, "retry-1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Release(ctx, c.ID)
	require.NoError(t, err)

	used, err := svc.Use(ctx, c.ID, UsageModeProducts, "retry-1")
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
}
