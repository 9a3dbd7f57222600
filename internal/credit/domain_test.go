package credit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var saleDate = time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)

func pendingCredit(t *testing.T) Credit {
	t.Helper()
	c, err := NewFromSale(SaleDetails{
		FornecedoraID: 7,
		SaleID:        42,
		ProductID:     99,
		SaleValue:     decimal.RequireFromString("100.00"),
		Percentage:    decimal.NewFromInt(60),
		SaleDate:      saleDate,
	})
	require.NoError(t, err)
	return c
}

func TestNewFromSale(t *testing.T) {
	c := pendingCredit(t)

	require.Equal(t, StatusPending, c.Status)
	require.Equal(t, "60.00", c.Amount.StringFixed(2))
	require.Equal(t, saleDate.AddDate(0, 0, 30), c.MaturationDate)
}

func TestNewFromSaleRejectsBadInput(t *testing.T) {
	base := SaleDetails{
		FornecedoraID: 1, SaleID: 1, ProductID: 1,
		SaleValue:  decimal.NewFromInt(50),
		Percentage: decimal.NewFromInt(50),
		SaleDate:   saleDate,
	}

	zeroValue := base
	zeroValue.SaleValue = decimal.Zero
	_, err := NewFromSale(zeroValue)
	require.ErrorIs(t, err, ErrInvalidInput)

	negative := base
	negative.SaleValue = decimal.NewFromInt(-10)
	_, err = NewFromSale(negative)
	require.ErrorIs(t, err, ErrInvalidInput)

	zeroPct := base
	zeroPct.Percentage = decimal.Zero
	_, err = NewFromSale(zeroPct)
	require.ErrorIs(t, err, ErrInvalidInput)

	overPct := base
	overPct.Percentage = decimal.RequireFromString("100.1")
	_, err = NewFromSale(overPct)
	require.ErrorIs(t, err, ErrInvalidInput)

	fullPct := base
	fullPct.Percentage = decimal.NewFromInt(100)
	c, err := NewFromSale(fullPct)
	require.NoError(t, err)
	require.True(t, c.Amount.Equal(fullPct.SaleValue))
}

func TestReleaseRespectsMaturation(t *testing.T) {
	c := pendingCredit(t)

	dayBefore := saleDate.AddDate(0, 0, 29)
	require.False(t, c.CanRelease(dayBefore))
	_, err := c.Release(dayBefore)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusPending, c.Status, "failed release must not mutate")

	// Failure is idempotent: same precondition, same error, unchanged state.
	_, err2 := c.Release(dayBefore)
	require.EqualError(t, err2, err.Error())

	matured := saleDate.AddDate(0, 0, 30)
	require.True(t, c.CanRelease(matured))
	released, err := c.Release(matured)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)
	require.Equal(t, StatusPending, c.Status, "receiver stays untouched")
}

func TestDaysUntilMaturation(t *testing.T) {
	c := pendingCredit(t)

	require.Equal(t, 30, c.DaysUntilMaturation(saleDate))
	require.Equal(t, 1, c.DaysUntilMaturation(saleDate.AddDate(0, 0, 29)))
	require.Equal(t, 0, c.DaysUntilMaturation(saleDate.AddDate(0, 0, 31)))

	released, err := c.Release(c.MaturationDate)
	require.NoError(t, err)
	require.Equal(t, 0, released.DaysUntilMaturation(saleDate))
}

func TestUseAndPayOutAreExclusiveTerminals(t *testing.T) {
	c := pendingCredit(t)
	now := c.MaturationDate.AddDate(0, 0, 1)

	_, err := c.Use(UsageModeProducts, now)
	require.ErrorIs(t, err, ErrInvalidTransition, "cannot use a pending credit")
	_, err = c.PayOut(now)
	require.ErrorIs(t, err, ErrInvalidTransition, "cannot pay out a pending credit")

	released, err := c.Release(now)
	require.NoError(t, err)

	used, err := released.Use(UsageModeCash, now)
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
	require.Equal(t, UsageModeCash, used.UsageMode)
	require.NotNil(t, used.UsedAt)

	_, err = used.PayOut(now)
	require.ErrorIs(t, err, ErrInvalidTransition, "used is terminal")
	_, err = used.Use(UsageModeProducts, now)
	require.ErrorIs(t, err, ErrInvalidTransition)

	paid, err := released.PayOut(now)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	_, err = paid.Use(UsageModeCash, now)
	require.ErrorIs(t, err, ErrInvalidTransition, "paid is terminal")
}

func TestUseRejectsUnknownMode(t *testing.T) {
	c := pendingCredit(t)
	released, err := c.Release(c.MaturationDate)
	require.NoError(t, err)

	_, err = released.Use(UsageMode("voucher"), time.Now())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestValueWithBonus(t *testing.T) {
	c := pendingCredit(t)
	require.Equal(t, "69.00", c.ValueWithBonus().StringFixed(2))
	require.Equal(t, "60.00", c.Amount.StringFixed(2), "bonus never mutates the amount")
}

func TestCreditJSONRoundTrip(t *testing.T) {
	c := pendingCredit(t)
	now := c.MaturationDate
	released, err := c.Release(now)
	require.NoError(t, err)
	used, err := released.Use(UsageModeProducts, now)
	require.NoError(t, err)
	used.ID = 12
	used.Version = 3
	used.CreatedAt = saleDate
	used.UpdatedAt = now

	raw, err := json.Marshal(used)
	require.NoError(t, err)

	var back Credit
	require.NoError(t, json.Unmarshal(raw, &back))

	require.Equal(t, used.ID, back.ID)
	require.Equal(t, used.Status, back.Status)
	require.Equal(t, used.UsageMode, back.UsageMode)
	require.Equal(t, used.Version, back.Version)
	require.True(t, used.Amount.Equal(back.Amount))
	require.True(t, used.SaleValue.Equal(back.SaleValue))
	require.True(t, used.MaturationDate.Equal(back.MaturationDate))
	require.NotNil(t, back.UsedAt)

	// Field-for-field fidelity: serializing the decoded entity again must
	// produce the same record.
	again, err := json.Marshal(back)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(again))
}
