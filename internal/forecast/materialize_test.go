package forecast

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

func TestMaterialize_Dedup(t *testing.T) {
	rule := testRule(core.CadenceMonthly, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	t.Run("existing transaction suppresses the month", func(t *testing.T) {
		existing := []core.Transaction{{
			ID:     42,
			UserID: "u1",
			Amount: rule.Amount,
			Type:   core.TxnExpense,
			Date:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
			RuleID: rule.ID,
			Period: "2024-06",
		}}

		got := Materialize([]core.Rule{rule}, []string{"2024-06"}, existing)
		if len(got) != 0 {
			t.Errorf("expected zero instances after dedup, got %d", len(got))
		}
	})

	t.Run("other months unaffected", func(t *testing.T) {
		existing := []core.Transaction{{
			ID: 42, UserID: "u1", Amount: rule.Amount, Type: core.TxnExpense,
			Date:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
			RuleID: rule.ID, Period: "2024-06",
		}}

		got := Materialize([]core.Rule{rule}, []string{"2024-06", "2024-07"}, existing)
		if len(got) != 1 {
			t.Fatalf("expected one instance, got %d", len(got))
		}
		if got[0].Period != "2024-07" {
			t.Errorf("Period = %q, want %q", got[0].Period, "2024-07")
		}
	})

	t.Run("manual transactions never deduplicate", func(t *testing.T) {
		manual := []core.Transaction{{
			ID: 7, UserID: "u1", Amount: rule.Amount, Type: core.TxnExpense,
			Date: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		}}

		got := Materialize([]core.Rule{rule}, []string{"2024-06"}, manual)
		if len(got) != 1 {
			t.Errorf("expected one instance, got %d", len(got))
		}
	})
}

func TestMaterialize_Idempotent(t *testing.T) {
	rules := []core.Rule{
		testRule(core.CadenceMonthly, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		testRule(core.CadenceWeekly, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	}
	rules[1].ID = 2
	months := []string{"2024-05", "2024-06"}

	first := Materialize(rules, months, nil)
	second := Materialize(rules, months, nil)

	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("instance %d drifted between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestMaterialize_Ordering(t *testing.T) {
	r1 := testRule(core.CadenceMonthly, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	r2 := testRule(core.CadenceMonthly, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	r2.ID = 2

	got := Materialize([]core.Rule{r1, r2}, []string{"2024-06", "2024-07"}, nil)
	if len(got) != 4 {
		t.Fatalf("expected 4 instances, got %d", len(got))
	}
	// Grouped by month, then by rule order: r1 June, r2 June, r1 July, r2 July.
	wantPeriods := []string{"2024-06", "2024-06", "2024-07", "2024-07"}
	wantRules := []int64{1, 2, 1, 2}
	for i := range got {
		if got[i].Period != wantPeriods[i] || got[i].RuleID != wantRules[i] {
			t.Errorf("instance %d = (rule %d, %s), want (rule %d, %s)",
				i, got[i].RuleID, got[i].Period, wantRules[i], wantPeriods[i])
		}
	}
}

func TestMaterialize_DeferredShift(t *testing.T) {
	deferred := testRule(core.CadenceMonthly, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	deferred.Source = core.SourceDeferred

	t.Run("purchase month emits nothing", func(t *testing.T) {
		got := Materialize([]core.Rule{deferred}, []string{"2024-06"}, nil)
		if len(got) != 0 {
			t.Errorf("expected no instances in purchase month, got %d", len(got))
		}
	})

	t.Run("repayment lands one month later", func(t *testing.T) {
		got := Materialize([]core.Rule{deferred}, []string{"2024-07"}, nil)
		if len(got) != 1 {
			t.Fatalf("expected one repayment instance, got %d", len(got))
		}
		inst := got[0]
		if inst.Kind != core.KindCarryover {
			t.Errorf("Kind = %q, want %q", inst.Kind, core.KindCarryover)
		}
		if inst.Period != "2024-06" {
			t.Errorf("Period = %q, want purchase month %q", inst.Period, "2024-06")
		}
		if !inst.Amount.Equal(deferred.Amount) {
			t.Errorf("Amount = %s, want %s", inst.Amount, deferred.Amount)
		}
		if MonthKey(inst.DueDate) != "2024-07" {
			t.Errorf("DueDate %v not in 2024-07", inst.DueDate)
		}
	})

	t.Run("repayment deduplicates against repayment transactions", func(t *testing.T) {
		existing := []core.Transaction{{
			ID: 9, UserID: "u1", Amount: deferred.Amount, Type: core.TxnExpense,
			DeferredRepayment: true,
			Date:              time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
			RuleID:            deferred.ID, Period: "2024-06",
		}}
		got := Materialize([]core.Rule{deferred}, []string{"2024-07"}, existing)
		if len(got) != 0 {
			t.Errorf("expected repayment deduplicated, got %d instances", len(got))
		}
	})

	t.Run("non-repayment transaction does not suppress the repayment", func(t *testing.T) {
		existing := []core.Transaction{{
			ID: 9, UserID: "u1", Amount: deferred.Amount, Type: core.TxnExpense,
			Date:   time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			RuleID: deferred.ID, Period: "2024-06",
		}}
		got := Materialize([]core.Rule{deferred}, []string{"2024-07"}, existing)
		if len(got) != 1 {
			t.Errorf("expected one repayment instance, got %d", len(got))
		}
	})

	t.Run("deferred income is treated as a normal rule", func(t *testing.T) {
		income := testRule(core.CadenceMonthly, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
		income.Source = core.SourceDeferred
		income.Direction = core.DirectionIncome

		got := Materialize([]core.Rule{income}, []string{"2024-06"}, nil)
		if len(got) != 1 {
			t.Fatalf("expected one instance in purchase month, got %d", len(got))
		}
		if got[0].Kind != core.KindRecurring {
			t.Errorf("Kind = %q, want %q", got[0].Kind, core.KindRecurring)
		}
	})
}

func TestMaterialize_SkipsMalformedRules(t *testing.T) {
	good := testRule(core.CadenceMonthly, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	bad := testRule(core.Cadence("sometimes"), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	bad.ID = 2
	zeroAmount := testRule(core.CadenceMonthly, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	zeroAmount.ID = 3
	zeroAmount.Amount = decimal.Zero

	got := Materialize([]core.Rule{bad, good, zeroAmount}, []string{"2024-06"}, nil)
	if len(got) != 1 {
		t.Fatalf("expected only the valid rule to materialize, got %d instances", len(got))
	}
	if got[0].RuleID != good.ID {
		t.Errorf("RuleID = %d, want %d", got[0].RuleID, good.ID)
	}
}
