package forecast

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

// DefaultHorizonMonths is the forecast length when the caller does not
// ask for one.
const DefaultHorizonMonths = 6

// Options selects the forecast window. Zero values mean "current month"
// and DefaultHorizonMonths.
type Options struct {
	StartMonth    string // YYYY-MM
	HorizonMonths int
}

// Result is the engine's output for API and UI consumers: the due
// instances of the whole window plus one summary per month.
type Result struct {
	Instances []core.Instance
	Months    []core.MonthSummary
}

// Generate runs the full pipeline: occurrence generation, instance
// materialization, deferred-payment reconciliation and month-by-month
// cash-flow aggregation over the forecast horizon.
//
// A malformed start month is rejected before any work happens. Malformed
// rules degrade locally: their contribution is skipped per month, the
// forecast itself always completes.
func Generate(rules []core.Rule, txns []core.Transaction, opts Options) (Result, error) {
	start := opts.StartMonth
	if start == "" {
		start = MonthKey(time.Now())
	}
	if _, err := ParseMonthKey(start); err != nil {
		return Result{}, err
	}
	horizon := opts.HorizonMonths
	if horizon <= 0 {
		horizon = DefaultHorizonMonths
	}

	result := Result{Months: make([]core.MonthSummary, 0, horizon)}
	carry := decimal.Zero
	key := start
	for i := 0; i < horizon; i++ {
		instances := Materialize(rules, []string{key}, txns)
		summary := summarizeMonth(key, instances, txns, carry)

		result.Instances = append(result.Instances, instances...)
		result.Months = append(result.Months, summary)

		carry = summary.OverdraftOut
		key, _ = AddMonthKey(key, 1)
	}
	return result, nil
}

// BuildForecast returns the per-month summaries for the window starting
// at startMonth. It is Generate without the instance list.
func BuildForecast(rules []core.Rule, txns []core.Transaction, startMonth string, horizonMonths int) ([]core.MonthSummary, error) {
	result, err := Generate(rules, txns, Options{StartMonth: startMonth, HorizonMonths: horizonMonths})
	if err != nil {
		return nil, err
	}
	return result.Months, nil
}

// summarizeMonth folds one month's instances and actual transactions
// into a summary, chaining the previous month's overdraft in.
//
// OverdraftIn is a positive shortfall and weighs against the month:
// finalBalance = income - expenses - overdraftIn. A negative final
// balance carries forward as overdraftOut = max(0, -finalBalance)
// rather than being silently absorbed.
func summarizeMonth(key string, instances []core.Instance, txns []core.Transaction, overdraftIn decimal.Decimal) core.MonthSummary {
	s := core.MonthSummary{
		Month:              key,
		Income:             decimal.Zero,
		Expenses:           decimal.Zero,
		NormalCharges:      decimal.Zero,
		DeferredRepayments: decimal.Zero,
		OverdraftIn:        overdraftIn,
	}

	for _, inst := range instances {
		switch inst.Direction {
		case core.DirectionIncome:
			s.Income = s.Income.Add(inst.Amount)
		case core.DirectionExpense:
			s.Expenses = s.Expenses.Add(inst.Amount)
			if inst.Kind == core.KindCarryover {
				s.DeferredRepayments = s.DeferredRepayments.Add(inst.Amount)
			} else {
				s.NormalCharges = s.NormalCharges.Add(inst.Amount)
			}
		}
	}

	for _, t := range txns {
		if MonthKey(t.Date) != key {
			continue
		}
		switch t.Type {
		case core.TxnIncome:
			s.Income = s.Income.Add(t.Amount)
		case core.TxnExpense:
			s.Expenses = s.Expenses.Add(t.Amount)
			if t.DeferredRepayment {
				s.DeferredRepayments = s.DeferredRepayments.Add(t.Amount)
			} else {
				s.NormalCharges = s.NormalCharges.Add(t.Amount)
			}
		}
	}

	s.FinalBalance = s.Income.Sub(s.Expenses).Sub(s.OverdraftIn)
	if s.FinalBalance.IsNegative() {
		s.OverdraftOut = s.FinalBalance.Neg()
	} else {
		s.OverdraftOut = decimal.Zero
	}
	return s
}

// MonthlyFixedCharges sums the expense-direction instances, the fixed
// obligations of a month.
func MonthlyFixedCharges(instances []core.Instance) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range instances {
		if inst.Direction == core.DirectionExpense {
			total = total.Add(inst.Amount)
		}
	}
	return total
}

// MonthlyRecurringIncome sums the income that rules generate in the
// month named by monthKey, before any deduplication.
func MonthlyRecurringIncome(rules []core.Rule, monthKey string) decimal.Decimal {
	total := decimal.Zero
	for _, rule := range rules {
		if rule.Direction != core.DirectionIncome {
			continue
		}
		occurrences, err := OccurrencesInMonth(rule, monthKey)
		if err != nil {
			continue
		}
		for range occurrences {
			total = total.Add(rule.Amount)
		}
	}
	return total
}
