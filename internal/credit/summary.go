package credit

import "github.com/shopspring/decimal"

// Summary aggregates a fornecedora's credit balances per status. Spendable is
// the released total; SpendableWithBonus applies the in-store product bonus
// to it, for display next to the cash payout option.
type Summary struct {
	FornecedoraID      int64           `json:"fornecedora_id"`
	Pending            decimal.Decimal `json:"pending"`
	Released           decimal.Decimal `json:"released"`
	Used               decimal.Decimal `json:"used"`
	Paid               decimal.Decimal `json:"paid"`
	SpendableWithBonus decimal.Decimal `json:"spendable_with_bonus"`
	Count              int             `json:"count"`
}

// Summarize folds credits into per-status totals.
func Summarize(fornecedoraID int64, credits []Credit) Summary {
	sum := Summary{
		FornecedoraID:      fornecedoraID,
		Pending:            decimal.Zero,
		Released:           decimal.Zero,
		Used:               decimal.Zero,
		Paid:               decimal.Zero,
		SpendableWithBonus: decimal.Zero,
	}
	for _, c := range credits {
		switch c.Status {
		case StatusPending:
			sum.Pending = sum.Pending.Add(c.Amount)
		case StatusReleased:
			sum.Released = sum.Released.Add(c.Amount)
			sum.SpendableWithBonus = sum.SpendableWithBonus.Add(c.ValueWithBonus())
		case StatusUsed:
			sum.Used = sum.Used.Add(c.Amount)
		case StatusPaid:
			sum.Paid = sum.Paid.Add(c.Amount)
		}
		sum.Count++
	}
	return sum
}
