package exchange

import (
	"fmt"
	"time"

	"github.com/brecho-erp/brecho-erp/internal/money"
)

// rule is one row of the troca decision table. A row matches on channel and,
// when Reason is set, on reason. New channel/reason policies are added as
// rows, never as branches inside the validator.
type rule struct {
	channel Channel
	reason  Reason // empty matches any reason
	allowed []Type
	// enforceDeadline requires the request to fall inside the statutory
	// withdrawal window for the channel.
	enforceDeadline bool
	// noRefundBelowOriginal forbids replacements cheaper than the original,
	// since the store may not hand cash back under this row.
	noRefundBelowOriginal bool
}

// ruleTable captures the legal/business matrix:
//
//	online      + any reason  -> devolucao only, within 7 days, full refund
//	presencial  + defeito     -> troca or devolucao, any replacement value
//	presencial  + sem_defeito -> troca only, replacement >= original
//	presencial  + desistencia -> troca only, replacement >= original
var ruleTable = []rule{
	{
		channel:         ChannelOnline,
		allowed:         []Type{TypeDevolucao},
		enforceDeadline: true,
	},
	{
		channel: ChannelPresencial,
		reason:  ReasonDefeito,
		allowed: []Type{TypeTroca, TypeDevolucao},
	},
	{
		channel:               ChannelPresencial,
		reason:                ReasonSemDefeito,
		allowed:               []Type{TypeTroca},
		noRefundBelowOriginal: true,
	},
	{
		channel:               ChannelPresencial,
		reason:                ReasonDesistencia,
		allowed:               []Type{TypeTroca},
		noRefundBelowOriginal: true,
	},
}

func (r rule) matches(t Troca) bool {
	if r.channel != t.Channel {
		return false
	}
	return r.reason == "" || r.reason == t.Reason
}

func (r rule) permits(typ Type) bool {
	for _, a := range r.allowed {
		if a == typ {
			return true
		}
	}
	return false
}

// Validate runs the troca through the decision table and returns every
// violation found. An empty slice means the request may be approved.
func Validate(t Troca, now time.Time) []string {
	var violations []string
	matched := false
	for _, r := range ruleTable {
		if !r.matches(t) {
			continue
		}
		matched = true
		if !r.permits(t.Type) {
			violations = append(violations, fmt.Sprintf(
				"canal %s com motivo %s não permite %s", t.Channel, t.Reason, t.Type))
		}
		if r.enforceDeadline && !t.WithinDeadline(now) {
			deadline := t.Deadline()
			violations = append(violations, fmt.Sprintf(
				"prazo de %d dias expirado em %s", OnlineReturnWindowDays, deadline.Format("2006-01-02")))
		}
		if r.noRefundBelowOriginal && t.Type == TypeTroca && t.ReplacementValue.LessThan(t.OriginalValue) {
			violations = append(violations, fmt.Sprintf(
				"produto substituto (%s) não pode valer menos que o original (%s)",
				money.FormatBRL(t.ReplacementValue), money.FormatBRL(t.OriginalValue)))
		}
		break
	}
	if !matched {
		violations = append(violations, fmt.Sprintf(
			"nenhuma regra cobre canal %s com motivo %s", t.Channel, t.Reason))
	}
	return violations
}
