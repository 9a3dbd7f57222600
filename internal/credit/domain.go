package credit

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brecho-erp/brecho-erp/internal/money"
)

// Status enumerates consignment credit lifecycle stages.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReleased Status = "released"
	StatusUsed     Status = "used"
	StatusPaid     Status = "paid"
)

// UsageMode records how a released credit was spent.
type UsageMode string

const (
	UsageModeProducts UsageMode = "products"
	UsageModeCash     UsageMode = "cash"
)

// MaturationDays is the statutory waiting period before a credit can be
// released to the fornecedora.
const MaturationDays = 30

// ErrInvalidInput flags malformed creation input, checked before any state change.
var ErrInvalidInput = errors.New("credit: invalid input")

// ErrInvalidTransition flags an operation attempted from a status that does
// not permit it.
var ErrInvalidTransition = errors.New("credit: invalid state transition")

// ErrNotFound indicates the credit does not exist.
var ErrNotFound = errors.New("credit: not found")

// ErrConflict indicates a concurrent writer won the version race; the caller
// should reread and retry.
var ErrConflict = errors.New("credit: version conflict")

// Credit is the maturing balance owed to a fornecedora after one of her
// consigned items sells. Credits are never deleted; transitions return new
// snapshots and leave the receiver untouched.
type Credit struct {
	ID             int64           `json:"id"`
	FornecedoraID  int64           `json:"fornecedora_id"`
	SaleID         int64           `json:"sale_id"`
	ProductID      int64           `json:"product_id"`
	SaleValue      decimal.Decimal `json:"sale_value"`
	Percentage     decimal.Decimal `json:"percentage"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	SaleDate       time.Time       `json:"sale_date"`
	MaturationDate time.Time       `json:"maturation_date"`
	ReleasedAt     *time.Time      `json:"released_at,omitempty"`
	UsedAt         *time.Time      `json:"used_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	UsageMode      UsageMode       `json:"usage_mode,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SaleDetails carries the fields the orchestrating sale flow supplies when a
// consigned item sells. The sale, product, and fornecedora records themselves
// live outside this core.
type SaleDetails struct {
	FornecedoraID int64           `json:"fornecedora_id"`
	SaleID        int64           `json:"sale_id"`
	ProductID     int64           `json:"product_id"`
	SaleValue     decimal.Decimal `json:"sale_value"`
	// Percentage is the fornecedora's repasse percentage, in (0,100].
	Percentage decimal.Decimal `json:"percentage"`
	SaleDate   time.Time       `json:"sale_date"`
}

var bonusFactor = decimal.RequireFromString("1.15")

// NewFromSale builds a pending credit for a consigned sale. The credit amount
// is saleValue x percentage / 100 and matures MaturationDays after the sale.
func NewFromSale(in SaleDetails) (Credit, error) {
	if in.SaleValue.LessThanOrEqual(decimal.Zero) {
		return Credit{}, fmt.Errorf("%w: sale value must be positive", ErrInvalidInput)
	}
	if in.Percentage.LessThanOrEqual(decimal.Zero) || in.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return Credit{}, fmt.Errorf("%w: repasse percentage must be in (0,100]", ErrInvalidInput)
	}
	if in.SaleDate.IsZero() {
		return Credit{}, fmt.Errorf("%w: sale date required", ErrInvalidInput)
	}
	return Credit{
		FornecedoraID:  in.FornecedoraID,
		SaleID:         in.SaleID,
		ProductID:      in.ProductID,
		SaleValue:      in.SaleValue,
		Percentage:     in.Percentage,
		Amount:         money.Percent(in.SaleValue, in.Percentage),
		Status:         StatusPending,
		SaleDate:       in.SaleDate,
		MaturationDate: money.AddDays(in.SaleDate, MaturationDays),
	}, nil
}

// DaysUntilMaturation reports how many whole days remain before the credit
// can be released. Non-pending credits report zero.
func (c Credit) DaysUntilMaturation(now time.Time) int {
	if c.Status != StatusPending {
		return 0
	}
	days := money.DaysBetween(now, c.MaturationDate)
	if days < 0 {
		return 0
	}
	return days
}

// CanRelease reports whether the credit is pending and its maturation date
// has passed.
func (c Credit) CanRelease(now time.Time) bool {
	return c.Status == StatusPending && !now.Before(c.MaturationDate)
}

// Release transitions pending -> released once the maturation date is reached.
func (c Credit) Release(now time.Time) (Credit, error) {
	if c.Status != StatusPending {
		return Credit{}, fmt.Errorf("%w: release requires %s, credit is %s", ErrInvalidTransition, StatusPending, c.Status)
	}
	if now.Before(c.MaturationDate) {
		return Credit{}, fmt.Errorf("%w: credit matures on %s", ErrInvalidTransition, c.MaturationDate.Format("2006-01-02"))
	}
	next := c
	next.Status = StatusReleased
	next.ReleasedAt = &now
	return next, nil
}

// Use transitions released -> used, recording how the credit was spent.
func (c Credit) Use(mode UsageMode, now time.Time) (Credit, error) {
	if mode != UsageModeProducts && mode != UsageModeCash {
		return Credit{}, fmt.Errorf("%w: unknown usage mode %q", ErrInvalidInput, mode)
	}
	if c.Status != StatusReleased {
		return Credit{}, fmt.Errorf("%w: use requires %s, credit is %s", ErrInvalidTransition, StatusReleased, c.Status)
	}
	next := c
	next.Status = StatusUsed
	next.UsageMode = mode
	next.UsedAt = &now
	return next, nil
}

// PayOut transitions released -> paid for a cash settlement.
func (c Credit) PayOut(now time.Time) (Credit, error) {
	if c.Status != StatusReleased {
		return Credit{}, fmt.Errorf("%w: payout requires %s, credit is %s", ErrInvalidTransition, StatusReleased, c.Status)
	}
	next := c
	next.Status = StatusPaid
	next.PaidAt = &now
	return next, nil
}

// ValueWithBonus returns the amount plus the 15% incentive offered when the
// fornecedora spends the credit on in-store products instead of cash. Display
// only; it never changes the stored amount.
func (c Credit) ValueWithBonus() decimal.Decimal {
	return c.Amount.Mul(bonusFactor).Round(2)
}
