package forecast

import (
	"log/slog"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

// fingerprint identifies one rule's obligation in one month. Two
// instances, or an instance and a persisted transaction, represent the
// same obligation iff their fingerprints match.
type fingerprint struct {
	RuleID int64
	Period string
}

// Materialize expands rules over the requested months into due
// instances, dropping every candidate already represented by a
// persisted transaction with a matching (rule, period) fingerprint.
//
// Instances come out grouped by month, then by rule, then by due date
// ascending; callers needing chronological order across rules must sort
// by due date themselves. The function is pure: it never mutates rules
// or transactions and creates nothing.
//
// A rule with malformed data is skipped for the affected month with a
// warning naming the rule id; one bad rule never poisons the rest of
// the run.
func Materialize(rules []core.Rule, monthKeys []string, existing []core.Transaction) []core.Instance {
	charged, repaid := existingFingerprints(existing)

	var out []core.Instance
	for _, key := range monthKeys {
		for _, rule := range rules {
			instances, err := instancesForMonth(rule, key, charged, repaid)
			if err != nil {
				slog.Warn("skipping rule for month",
					"rule_id", rule.ID,
					"month", key,
					"error", err)
				continue
			}
			out = append(out, instances...)
		}
	}
	return out
}

// instancesForMonth produces the candidate instances of a single rule
// for a single month, after deduplication.
//
// A deferred-source expense rule is the "buy now, pay later" case: the
// purchase-month occurrence is not payable then, so it is suppressed,
// and the purchase occurrences of the previous month surface here as
// carryover repayment instances instead. Deferred income rules get no
// special treatment.
func instancesForMonth(rule core.Rule, monthKey string, charged, repaid map[fingerprint]bool) ([]core.Instance, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if rule.Source == core.SourceDeferred && rule.Direction == core.DirectionExpense {
		purchaseMonth, err := AddMonthKey(monthKey, -1)
		if err != nil {
			return nil, err
		}
		purchases, err := OccurrencesInMonth(rule, purchaseMonth)
		if err != nil {
			return nil, err
		}
		var out []core.Instance
		for _, due := range purchases {
			if repaid[fingerprint{RuleID: rule.ID, Period: purchaseMonth}] {
				continue
			}
			out = append(out, core.Instance{
				RuleID:      rule.ID,
				DueDate:     AddCadencePeriods(due, core.CadenceMonthly, 1, due.Day()),
				Amount:      rule.Amount,
				Category:    rule.Category,
				Description: rule.Description,
				Direction:   rule.Direction,
				Source:      rule.Source,
				Kind:        core.KindCarryover,
				Period:      purchaseMonth,
			})
		}
		return out, nil
	}

	occurrences, err := OccurrencesInMonth(rule, monthKey)
	if err != nil {
		return nil, err
	}
	var out []core.Instance
	for _, due := range occurrences {
		if charged[fingerprint{RuleID: rule.ID, Period: monthKey}] {
			continue
		}
		out = append(out, core.Instance{
			RuleID:      rule.ID,
			DueDate:     due,
			Amount:      rule.Amount,
			Category:    rule.Category,
			Description: rule.Description,
			Direction:   rule.Direction,
			Source:      rule.Source,
			Kind:        core.KindRecurring,
			Period:      monthKey,
		})
	}
	return out, nil
}

// existingFingerprints indexes the transactions that were materialized
// from rules. Repayment-flagged transactions deduplicate carryover
// instances, all others deduplicate regular ones.
func existingFingerprints(txns []core.Transaction) (charged, repaid map[fingerprint]bool) {
	charged = make(map[fingerprint]bool)
	repaid = make(map[fingerprint]bool)
	for _, t := range txns {
		if t.RuleID == 0 || t.Period == "" {
			continue
		}
		fp := fingerprint{RuleID: t.RuleID, Period: t.Period}
		if t.DeferredRepayment {
			repaid[fp] = true
		} else {
			charged[fp] = true
		}
	}
	return charged, repaid
}
