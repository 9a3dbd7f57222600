// Package cashier implements the caixa: one open-to-close register session
// with an append-only movement journal, running totals per movement type and
// payment method, and counted-versus-expected reconciliation at close.
package cashier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates session lifecycle stages. Fechado is terminal.
type Status string

const (
	StatusAberto  Status = "aberto"
	StatusFechado Status = "fechado"
)

// MovementType classifies journal entries.
type MovementType string

const (
	MovementVenda   MovementType = "venda"
	MovementDespesa MovementType = "despesa"
	MovementSangria MovementType = "sangria"
	MovementReforco MovementType = "reforco"
)

// PaymentMethod classifies how a venda was paid. Only dinheiro affects the
// expected cash balance.
type PaymentMethod string

const (
	MethodDinheiro      PaymentMethod = "dinheiro"
	MethodCartao        PaymentMethod = "cartao"
	MethodPix           PaymentMethod = "pix"
	MethodTransferencia PaymentMethod = "transferencia"
)

// DiscrepancyLabel classifies the signed close discrepancy.
type DiscrepancyLabel string

const (
	LabelOK    DiscrepancyLabel = "ok"
	LabelSobra DiscrepancyLabel = "sobra"
	LabelFalta DiscrepancyLabel = "falta"
)

// ErrInvalidInput flags malformed input, checked before any state change.
var ErrInvalidInput = errors.New("cashier: invalid input")

// ErrSessionClosed flags operations attempted on a terminal session.
var ErrSessionClosed = errors.New("cashier: session already closed")

// ErrSessionAlreadyOpen indicates the operator already has an open session.
var ErrSessionAlreadyOpen = errors.New("cashier: operator already has an open session")

// ErrNotFound indicates the session does not exist.
var ErrNotFound = errors.New("cashier: not found")

// ErrConflict indicates a concurrent writer won the version race.
var ErrConflict = errors.New("cashier: version conflict")

// Movement is one immutable journal entry. The identifier is assigned at the
// persistence boundary, never by domain logic.
type Movement struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     int64           `json:"session_id"`
	Type          MovementType    `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// MovementInput carries the caller-supplied fields for a new movement.
type MovementInput struct {
	Type          MovementType    `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty"`
}

// MethodTotals breaks venda totals out by payment method.
type MethodTotals struct {
	Dinheiro      decimal.Decimal `json:"dinheiro"`
	Cartao        decimal.Decimal `json:"cartao"`
	Pix           decimal.Decimal `json:"pix"`
	Transferencia decimal.Decimal `json:"transferencia"`
}

// CashSession is one register session. All running totals are monotonically
// non-decreasing while the session is open; Close freezes them.
type CashSession struct {
	ID                  int64            `json:"id"`
	OperatorID          int64            `json:"operator_id"`
	Status              Status           `json:"status"`
	OpeningBalance      decimal.Decimal  `json:"opening_balance"`
	TotalSales          decimal.Decimal  `json:"total_sales"`
	TotalExpenses       decimal.Decimal  `json:"total_expenses"`
	TotalWithdrawals    decimal.Decimal  `json:"total_withdrawals"`
	TotalReinforcements decimal.Decimal  `json:"total_reinforcements"`
	SalesByMethod       MethodTotals     `json:"sales_by_method"`
	Movements           []Movement       `json:"movements"`
	OpenedAt            time.Time        `json:"opened_at"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
	CountedBalance      *decimal.Decimal `json:"counted_balance,omitempty"`
	ExpectedAtClose     *decimal.Decimal `json:"expected_at_close,omitempty"`
	Discrepancy         *decimal.Decimal `json:"discrepancy,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	Version             int64            `json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Open starts a session for an operator with the counted drawer float.
func Open(operatorID int64, openingBalance decimal.Decimal, now time.Time) (CashSession, error) {
	if operatorID <= 0 {
		return CashSession{}, fmt.Errorf("%w: operator required", ErrInvalidInput)
	}
	if openingBalance.IsNegative() {
		return CashSession{}, fmt.Errorf("%w: opening balance cannot be negative", ErrInvalidInput)
	}
	return CashSession{
		OperatorID:          operatorID,
		Status:              StatusAberto,
		OpeningBalance:      openingBalance,
		TotalSales:          decimal.Zero,
		TotalExpenses:       decimal.Zero,
		TotalWithdrawals:    decimal.Zero,
		TotalReinforcements: decimal.Zero,
		SalesByMethod: MethodTotals{
			Dinheiro:      decimal.Zero,
			Cartao:        decimal.Zero,
			Pix:           decimal.Zero,
			Transferencia: decimal.Zero,
		},
		OpenedAt: now,
	}, nil
}

// Record appends a movement and updates the matching running totals in one
// step; the returned snapshot either carries both effects or the receiver is
// returned unchanged alongside the error.
func (s CashSession) Record(in MovementInput, now time.Time) (CashSession, Movement, error) {
	if s.Status != StatusAberto {
		return CashSession{}, Movement{}, ErrSessionClosed
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return CashSession{}, Movement{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return CashSession{}, Movement{}, fmt.Errorf("%w: description required", ErrInvalidInput)
	}

	next := s
	switch in.Type {
	case MovementVenda:
		if in.PaymentMethod == nil {
			return CashSession{}, Movement{}, fmt.Errorf("%w: venda requires a payment method", ErrInvalidInput)
		}
		byMethod := next.SalesByMethod
		switch *in.PaymentMethod {
		case MethodDinheiro:
			byMethod.Dinheiro = byMethod.Dinheiro.Add(in.Amount)
		case MethodCartao:
			byMethod.Cartao = byMethod.Cartao.Add(in.Amount)
		case MethodPix:
			byMethod.Pix = byMethod.Pix.Add(in.Amount)
		case MethodTransferencia:
			byMethod.Transferencia = byMethod.Transferencia.Add(in.Amount)
		default:
			return CashSession{}, Movement{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, *in.PaymentMethod)
		}
		next.SalesByMethod = byMethod
		next.TotalSales = next.TotalSales.Add(in.Amount)
	case MovementDespesa:
		next.TotalExpenses = next.TotalExpenses.Add(in.Amount)
	case MovementSangria:
		next.TotalWithdrawals = next.TotalWithdrawals.Add(in.Amount)
	case MovementReforco:
		next.TotalReinforcements = next.TotalReinforcements.Add(in.Amount)
	default:
		return CashSession{}, Movement{}, fmt.Errorf("%w: unknown movement type %q", ErrInvalidInput, in.Type)
	}

	m := Movement{
		SessionID:     s.ID,
		Type:          in.Type,
		Amount:        in.Amount,
		Description:   strings.TrimSpace(in.Description),
		PaymentMethod: in.PaymentMethod,
		RecordedAt:    now,
	}
	next.Movements = append(append([]Movement(nil), s.Movements...), m)
	return next, m, nil
}

// ExpectedBalance recomputes the cash the drawer should hold from the running
// totals; card, pix, and transfer sales never enter the drawer.
func (s CashSession) ExpectedBalance() decimal.Decimal {
	return s.OpeningBalance.
		Add(s.SalesByMethod.Dinheiro).
		Sub(s.TotalExpenses).
		Sub(s.TotalWithdrawals).
		Add(s.TotalReinforcements)
}

// Close reconciles the physically counted balance against the expected one
// and freezes the session. A session closes exactly once.
func (s CashSession) Close(countedBalance decimal.Decimal, notes string, now time.Time) (CashSession, error) {
	if s.Status != StatusAberto {
		return CashSession{}, ErrSessionClosed
	}
	if countedBalance.IsNegative() {
		return CashSession{}, fmt.Errorf("%w: counted balance cannot be negative", ErrInvalidInput)
	}
	expected := s.ExpectedBalance()
	discrepancy := countedBalance.Sub(expected)

	next := s
	next.Status = StatusFechado
	next.ClosedAt = &now
	next.CountedBalance = &countedBalance
	next.ExpectedAtClose = &expected
	next.Discrepancy = &discrepancy
	next.Notes = notes
	return next, nil
}

// DiscrepancyLabel classifies the close discrepancy: sobra when the drawer
// held more than expected, falta when it held less.
func (s CashSession) DiscrepancyLabel() DiscrepancyLabel {
	if s.Discrepancy == nil || s.Discrepancy.IsZero() {
		return LabelOK
	}
	if s.Discrepancy.IsPositive() {
		return LabelSobra
	}
	return LabelFalta
}
