// Package exchange implements the troca/devolução engine: a decision table
// over sales channel and defect status decides which requests are lawful, and
// pure transition functions drive each request through its lifecycle.
package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brecho-erp/brecho-erp/internal/money"
)

// Type distinguishes an exchange from a return.
type Type string

const (
	TypeTroca     Type = "troca"
	TypeDevolucao Type = "devolucao"
)

// Channel is where the original sale happened.
type Channel string

const (
	ChannelPresencial Channel = "presencial"
	ChannelOnline     Channel = "online"
)

// Reason classifies why the customer is bringing the item back.
type Reason string

const (
	ReasonDefeito     Reason = "defeito"
	ReasonSemDefeito  Reason = "sem_defeito"
	ReasonDesistencia Reason = "desistencia"
)

// Status enumerates the request lifecycle. Concluido, recusado, and
// cancelado are terminal.
type Status string

const (
	StatusSolicitado Status = "solicitado"
	StatusAprovado   Status = "aprovado"
	StatusRecusado   Status = "recusado"
	StatusConcluido  Status = "concluido"
	StatusCancelado  Status = "cancelado"
)

// OnlineReturnWindowDays is the statutory withdrawal window for online sales.
const OnlineReturnWindowDays = 7

// ErrInvalidInput flags malformed creation input.
var ErrInvalidInput = errors.New("exchange: invalid input")

// ErrInvalidTransition flags an operation attempted from a status that does
// not permit it.
var ErrInvalidTransition = errors.New("exchange: invalid state transition")

// ErrNotFound indicates the troca does not exist.
var ErrNotFound = errors.New("exchange: not found")

// ErrConflict indicates a concurrent writer won the version race.
var ErrConflict = errors.New("exchange: version conflict")

// RuleViolationError carries every decision-table violation at once so the
// back office can show the full list instead of the first failure.
type RuleViolationError struct {
	Violations []string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("exchange: rule violations: %v", e.Violations)
}

// Troca is one exchange or return request against an original sale.
type Troca struct {
	ID                   int64           `json:"id"`
	SaleID               int64           `json:"sale_id"`
	CustomerID           int64           `json:"customer_id"`
	ProductID            int64           `json:"product_id"`
	ReplacementProductID *int64          `json:"replacement_product_id,omitempty"`
	Type                 Type            `json:"type"`
	Channel              Channel         `json:"channel"`
	Reason               Reason          `json:"reason"`
	OriginalValue        decimal.Decimal `json:"original_value"`
	ReplacementValue     decimal.Decimal `json:"replacement_value"`
	Difference           decimal.Decimal `json:"difference"`
	RefundedAmount       decimal.Decimal `json:"refunded_amount"`
	Status               Status          `json:"status"`
	SaleDate             time.Time       `json:"sale_date"`
	RequestedAt          time.Time       `json:"requested_at"`
	ApprovedBy           *int64          `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	RejectedBy           *int64          `json:"rejected_by,omitempty"`
	RejectReason         string          `json:"reject_reason,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Request carries the customer/staff input for a new troca.
type Request struct {
	SaleID               int64           `json:"sale_id"`
	CustomerID           int64           `json:"customer_id"`
	ProductID            int64           `json:"product_id"`
	ReplacementProductID *int64          `json:"replacement_product_id,omitempty"`
	Type                 Type            `json:"type"`
	Channel              Channel         `json:"channel"`
	Reason               Reason          `json:"reason"`
	OriginalValue        decimal.Decimal `json:"original_value"`
	ReplacementValue     decimal.Decimal `json:"replacement_value"`
	SaleDate             time.Time       `json:"sale_date"`
	Notes                string          `json:"notes,omitempty"`
}

// New builds a solicitado troca. Monetary outcomes (difference, refund) are
// derived here so they can never drift from the inputs.
func New(in Request, now time.Time) (Troca, error) {
	if err := validateEnums(in.Type, in.Channel, in.Reason); err != nil {
		return Troca{}, err
	}
	if in.OriginalValue.LessThanOrEqual(decimal.Zero) {
		return Troca{}, fmt.Errorf("%w: original value must be positive", ErrInvalidInput)
	}
	if in.ReplacementValue.IsNegative() {
		return Troca{}, fmt.Errorf("%w: replacement value cannot be negative", ErrInvalidInput)
	}
	if in.Type == TypeDevolucao && !in.ReplacementValue.IsZero() {
		return Troca{}, fmt.Errorf("%w: devolucao carries no replacement value", ErrInvalidInput)
	}
	if in.SaleDate.IsZero() {
		return Troca{}, fmt.Errorf("%w: sale date required", ErrInvalidInput)
	}
	tr := Troca{
		SaleID:               in.SaleID,
		CustomerID:           in.CustomerID,
		ProductID:            in.ProductID,
		ReplacementProductID: in.ReplacementProductID,
		Type:                 in.Type,
		Channel:              in.Channel,
		Reason:               in.Reason,
		OriginalValue:        in.OriginalValue,
		ReplacementValue:     in.ReplacementValue,
		Status:               StatusSolicitado,
		SaleDate:             in.SaleDate,
		RequestedAt:          now,
		Notes:                in.Notes,
	}
	tr.Difference, tr.RefundedAmount = settlement(tr)
	return tr, nil
}

func validateEnums(typ Type, channel Channel, reason Reason) error {
	switch typ {
	case TypeTroca, TypeDevolucao:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, typ)
	}
	switch channel {
	case ChannelPresencial, ChannelOnline:
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, channel)
	}
	switch reason {
	case ReasonDefeito, ReasonSemDefeito, ReasonDesistencia:
	default:
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidInput, reason)
	}
	return nil
}

// settlement derives the signed difference and the refund for a troca.
// Devolução refunds the full original value; troca settles the signed gap
// between replacement and original (positive: customer owes the store).
func settlement(t Troca) (difference, refunded decimal.Decimal) {
	if t.Type == TypeDevolucao {
		return decimal.Zero, t.OriginalValue
	}
	return t.ReplacementValue.Sub(t.OriginalValue), decimal.Zero
}

// CalculateDifference returns the signed settlement amount for a request:
// zero for devolução, replacement minus original for troca.
func CalculateDifference(t Troca) decimal.Decimal {
	diff, _ := settlement(t)
	return diff
}

// Deadline returns the statutory response deadline, or nil when the channel
// imposes none.
func (t Troca) Deadline() *time.Time {
	return Deadline(t.SaleDate, t.Channel)
}

// Deadline computes the statutory deadline for a sale on the given channel.
func Deadline(saleDate time.Time, channel Channel) *time.Time {
	if channel != ChannelOnline {
		return nil
	}
	d := money.AddDays(saleDate, OnlineReturnWindowDays)
	return &d
}

// WithinDeadline reports whether now still falls inside the statutory window.
func (t Troca) WithinDeadline(now time.Time) bool {
	deadline := t.Deadline()
	return deadline == nil || !now.After(*deadline)
}

// Approve transitions solicitado -> aprovado after the rule matrix passes.
// Rule failures return a *RuleViolationError listing every violation; neither
// outcome mutates the receiver.
func (t Troca) Approve(staffID int64, now time.Time) (Troca, error) {
	if t.Status != StatusSolicitado {
		return Troca{}, fmt.Errorf("%w: approve requires %s, troca is %s", ErrInvalidTransition, StatusSolicitado, t.Status)
	}
	if violations := Validate(t, now); len(violations) > 0 {
		return Troca{}, &RuleViolationError{Violations: violations}
	}
	next := t
	next.Status = StatusAprovado
	next.ApprovedBy = &staffID
	next.ApprovedAt = &now
	return next, nil
}

// Reject transitions solicitado -> recusado, recording who and why.
func (t Troca) Reject(staffID int64, reason string) (Troca, error) {
	if t.Status != StatusSolicitado {
		return Troca{}, fmt.Errorf("%w: reject requires %s, troca is %s", ErrInvalidTransition, StatusSolicitado, t.Status)
	}
	next := t
	next.Status = StatusRecusado
	next.RejectedBy = &staffID
	next.RejectReason = reason
	return next, nil
}

// Complete transitions aprovado -> concluido once the settlement happened.
func (t Troca) Complete(now time.Time) (Troca, error) {
	if t.Status != StatusAprovado {
		return Troca{}, fmt.Errorf("%w: complete requires %s, troca is %s", ErrInvalidTransition, StatusAprovado, t.Status)
	}
	next := t
	next.Status = StatusConcluido
	next.CompletedAt = &now
	return next, nil
}

// Cancel is allowed from solicitado or aprovado.
func (t Troca) Cancel(now time.Time) (Troca, error) {
	if t.Status != StatusSolicitado && t.Status != StatusAprovado {
		return Troca{}, fmt.Errorf("%w: cancel requires %s or %s, troca is %s", ErrInvalidTransition, StatusSolicitado, StatusAprovado, t.Status)
	}
	next := t
	next.Status = StatusCancelado
	next.CancelledAt = &now
	return next, nil
}

// Terminal reports whether no further transitions are permitted.
func (t Troca) Terminal() bool {
	switch t.Status {
	case StatusConcluido, StatusRecusado, StatusCancelado:
		return true
	}
	return false
}
