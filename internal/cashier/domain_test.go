package cashier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var openedAt = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func method(m PaymentMethod) *PaymentMethod {
	return &m
}

func openSession(t *testing.T, opening string) CashSession {
	t.Helper()
	s, err := Open(12, dec(opening), openedAt)
	require.NoError(t, err)
	return s
}

func record(t *testing.T, s CashSession, in MovementInput) CashSession {
	t.Helper()
	next, _, err := s.Record(in, openedAt.Add(time.Hour))
	require.NoError(t, err)
	return next
}

func TestOpen(t *testing.T) {
	s := openSession(t, "100.00")

	require.Equal(t, StatusAberto, s.Status)
	require.Equal(t, int64(12), s.OperatorID)
	require.True(t, s.ExpectedBalance().Equal(dec("100.00")))
	require.Empty(t, s.Movements)
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open(0, dec("50"), openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Open(12, dec("-1"), openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordValidation(t *testing.T) {
	s := openSession(t, "100.00")

	_, _, err := s.Record(MovementInput{Type: MovementDespesa, Amount: decimal.Zero, Description: "agua"}, openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = s.Record(MovementInput{Type: MovementDespesa, Amount: dec("10"), Description: "   "}, openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = s.Record(MovementInput{Type: MovementVenda, Amount: dec("10"), Description: "camiseta"}, openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = s.Record(MovementInput{Type: "estorno", Amount: dec("10"), Description: "x"}, openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)

	bad := PaymentMethod("cheque")
	_, _, err = s.Record(MovementInput{Type: MovementVenda, Amount: dec("10"), Description: "x", PaymentMethod: &bad}, openedAt)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordLeavesReceiverUntouched(t *testing.T) {
	s := openSession(t, "100.00")
	next := record(t, s, MovementInput{Type: MovementDespesa, Amount: dec("20.00"), Description: "sacolas"})

	require.Empty(t, s.Movements)
	require.True(t, s.TotalExpenses.IsZero())
	require.Len(t, next.Movements, 1)
	require.True(t, next.TotalExpenses.Equal(dec("20.00")))
}

func TestExpectedBalanceOnlyCountsCashSales(t *testing.T) {
	s := openSession(t, "100.00")
	s = record(t, s, MovementInput{Type: MovementVenda, Amount: dec("50.00"), Description: "vestido", PaymentMethod: method(MethodDinheiro)})
	s = record(t, s, MovementInput{Type: MovementVenda, Amount: dec("80.00"), Description: "casaco", PaymentMethod: method(MethodCartao)})
	s = record(t, s, MovementInput{Type: MovementVenda, Amount: dec("35.00"), Description: "bolsa", PaymentMethod: method(MethodPix)})

	require.True(t, s.TotalSales.Equal(dec("165.00")))
	require.True(t, s.ExpectedBalance().Equal(dec("150.00")))
}

func TestExpectedBalanceIsOrderIndependent(t *testing.T) {
	inputs := []MovementInput{
		{Type: MovementVenda, Amount: dec("50.00"), Description: "venda", PaymentMethod: method(MethodDinheiro)},
		{Type: MovementDespesa, Amount: dec("20.00"), Description: "despesa"},
		{Type: MovementSangria, Amount: dec("30.00"), Description: "sangria"},
		{Type: MovementReforco, Amount: dec("10.00"), Description: "reforco"},
	}

	forward := openSession(t, "100.00")
	for _, in := range inputs {
		forward = record(t, forward, in)
	}
	backward := openSession(t, "100.00")
	for i := len(inputs) - 1; i >= 0; i-- {
		backward = record(t, backward, inputs[i])
	}

	require.True(t, forward.ExpectedBalance().Equal(dec("110.00")))
	require.True(t, backward.ExpectedBalance().Equal(forward.ExpectedBalance()))
}

func TestCloseReconciliation(t *testing.T) {
	s := openSession(t, "100.00")
	s = record(t, s, MovementInput{Type: MovementVenda, Amount: dec("50.00"), Description: "vestido", PaymentMethod: method(MethodDinheiro)})
	s = record(t, s, MovementInput{Type: MovementDespesa, Amount: dec("20.00"), Description: "lanche"})

	closedAt := openedAt.Add(9 * time.Hour)
	closed, err := s.Close(dec("125.00"), "faltou troco", closedAt)
	require.NoError(t, err)

	require.Equal(t, StatusFechado, closed.Status)
	require.True(t, closed.ExpectedAtClose.Equal(dec("130.00")))
	require.True(t, closed.Discrepancy.Equal(dec("-5.00")))
	require.Equal(t, LabelFalta, closed.DiscrepancyLabel())
	require.Equal(t, &closedAt, closed.ClosedAt)
}

func TestCloseExactlyOnce(t *testing.T) {
	s := openSession(t, "100.00")
	closed, err := s.Close(dec("100.00"), "", openedAt.Add(time.Hour))
	require.NoError(t, err)

	_, err = closed.Close(dec("100.00"), "", openedAt.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrSessionClosed)

	_, _, err = closed.Record(MovementInput{Type: MovementDespesa, Amount: dec("5"), Description: "x"}, openedAt)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestDiscrepancyLabel(t *testing.T) {
	s := openSession(t, "100.00")

	require.Equal(t, LabelOK, s.DiscrepancyLabel())

	even, err := s.Close(dec("100.00"), "", openedAt)
	require.NoError(t, err)
	require.Equal(t, LabelOK, even.DiscrepancyLabel())

	over, err := s.Close(dec("101.50"), "", openedAt)
	require.NoError(t, err)
	require.Equal(t, LabelSobra, over.DiscrepancyLabel())
	require.True(t, over.Discrepancy.Equal(dec("1.50")))
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := openSession(t, "100.00")
	s = record(t, s, MovementInput{Type: MovementVenda, Amount: dec("50.00"), Description: "vestido", PaymentMethod: method(MethodDinheiro)})
	closed, err := s.Close(dec("148.00"), "conferido", openedAt.Add(8*time.Hour))
	require.NoError(t, err)

	raw, err := json.Marshal(closed)
	require.NoError(t, err)

	var decoded CashSession
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Equal(t, closed.Status, decoded.Status)
	require.True(t, decoded.OpeningBalance.Equal(closed.OpeningBalance))
	require.True(t, decoded.Discrepancy.Equal(*closed.Discrepancy))
	require.Len(t, decoded.Movements, 1)

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(again))
}
