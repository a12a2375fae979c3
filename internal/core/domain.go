package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

const (
	SourceNormal   PaymentSource = "normal"
	SourceDeferred PaymentSource = "deferred"
)

const (
	TxnIncome   TransactionType = "income"
	TxnExpense  TransactionType = "expense"
	TxnTransfer TransactionType = "transfer"
)

const (
	KindRecurring InstanceKind = "recurring"
	KindCarryover InstanceKind = "carryover"
)

type (
	Cadence         string
	Direction       string
	PaymentSource   string
	TransactionType string
	InstanceKind    string

	// Rule is a recurring-charge template owned by a user. It is never
	// mutated by forecasting; materialization is a read-only projection.
	Rule struct {
		ID          int64
		UserID      string
		Amount      decimal.Decimal
		Category    string
		Source      PaymentSource
		Description string
		Direction   Direction
		Cadence     Cadence
		DayOfMonth  int  // 1-28 for month-based cadences, 0 = derive from start date
		Weekday     *int // 0 (Sunday) - 6, weekly cadence only
		StartDate   time.Time
		EndDate     time.Time // zero = open-ended
		Active      bool
	}

	// Transaction is a persisted ledger record. RuleID and Period are set
	// when the record was materialized from a rule; together they form the
	// uniqueness fingerprint for that rule's obligation in that month.
	Transaction struct {
		ID                int64
		UserID            string
		Amount            decimal.Decimal
		Type              TransactionType
		Category          string
		Source            PaymentSource
		DeferredRepayment bool
		Date              time.Time
		RuleID            int64 // 0 = manual entry
		Period            string
	}

	// Instance is a derived, non-persisted candidate ledger entry produced
	// by expanding a rule over a month. Period identifies the obligation;
	// for carryover instances it names the purchase month, one month
	// before the due date.
	Instance struct {
		RuleID      int64
		DueDate     time.Time
		Amount      decimal.Decimal
		Category    string
		Description string
		Direction   Direction
		Source      PaymentSource
		Kind        InstanceKind
		Period      string
	}

	// MonthSummary is one month of the cash-flow forecast. OverdraftIn and
	// OverdraftOut hold positive shortfall amounts; OverdraftIn of month
	// N+1 always equals OverdraftOut of month N.
	MonthSummary struct {
		Month              string
		Income             decimal.Decimal
		Expenses           decimal.Decimal
		NormalCharges      decimal.Decimal
		DeferredRepayments decimal.Decimal
		OverdraftIn        decimal.Decimal
		OverdraftOut       decimal.Decimal
		FinalBalance       decimal.Decimal
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCadence    = errors.New("invalid cadence")
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrInvalidDateRange  = errors.New("end date before start date")
	ErrInvalidDayOfMonth = errors.New("day of month out of range")
	ErrInvalidWeekday    = errors.New("weekday out of range")
	ErrMissingStartDate  = errors.New("missing start date")
	ErrEmptyCategory     = errors.New("empty category")
)

// Valid reports whether c is one of the known cadences.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly:
		return true
	}
	return false
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// Valid reports whether s is a known payment source.
func (s PaymentSource) Valid() bool {
	return s == SourceNormal || s == SourceDeferred
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TxnIncome || t == TxnExpense || t == TxnTransfer
}

func (r Rule) Validate() error {
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !r.Cadence.Valid() {
		return ErrInvalidCadence
	}
	if !r.Direction.Valid() {
		return ErrInvalidDirection
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if r.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return ErrInvalidDateRange
	}
	if r.DayOfMonth != 0 {
		if r.Cadence == CadenceWeekly {
			return ErrInvalidDayOfMonth
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 28 {
			return ErrInvalidDayOfMonth
		}
	}
	if r.Weekday != nil {
		if r.Cadence != CadenceWeekly {
			return ErrInvalidWeekday
		}
		if *r.Weekday < 0 || *r.Weekday > 6 {
			return ErrInvalidWeekday
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return errors.New("invalid transaction type")
	}
	if t.Date.IsZero() {
		return errors.New("missing transaction date")
	}
	return nil
}
