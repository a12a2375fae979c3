// Package storage persists rules and transactions in SQLite and is the
// authoritative enforcement point for the one-transaction-per-rule-and-
// period invariant via a unique index.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

const dateLayout = "2006-01-02"

// ErrDuplicateInstance is returned when an insert collides with the
// unique (rule, period, repayment) index, meaning another run already
// materialized this obligation.
var ErrDuplicateInstance = errors.New("instance already materialized for rule and period")

// ErrNotFound is returned for lookups of missing or soft-deleted rows.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateRule inserts a recurring rule and returns its id.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, fmt.Errorf("validate rule: %w", err)
	}

	var endDate any
	if !rule.EndDate.IsZero() {
		endDate = rule.EndDate.UTC().Format(dateLayout)
	}
	var dayOfMonth, weekday any
	if rule.DayOfMonth != 0 {
		dayOfMonth = rule.DayOfMonth
	}
	if rule.Weekday != nil {
		weekday = *rule.Weekday
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules
			(user_id, amount, category, payment_source, description,
			 direction, cadence, day_of_month, weekday, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, rule.Amount.String(), rule.Category, string(rule.Source),
		rule.Description, string(rule.Direction), string(rule.Cadence),
		dayOfMonth, weekday, rule.StartDate.UTC().Format(dateLayout), endDate, rule.Active,
	)
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rule insert id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule saved",
		"id", id,
		"user_id", rule.UserID,
		"cadence", rule.Cadence,
		"direction", rule.Direction,
		"amount", rule.Amount.String())

	return id, nil
}

// GetRule returns one rule by id, soft-deleted rows excluded.
func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (core.Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, category, payment_source, description,
		       direction, cadence, day_of_month, weekday, start_date, end_date, active
		FROM recurring_rules
		WHERE id = ? AND deleted_at IS NULL`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Rule{}, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Rule{}, fmt.Errorf("get rule %d: %w", id, err)
	}
	return rule, nil
}

// ListRules returns the active rules of one user.
func (r *SQLiteRepository) ListRules(ctx context.Context, userID string) ([]core.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, payment_source, description,
		       direction, cadence, day_of_month, weekday, start_date, end_date, active
		FROM recurring_rules
		WHERE user_id = ? AND active = 1 AND deleted_at IS NULL
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListRuleUsers returns the distinct owners of active rules, the work
// list for a materialization run.
func (r *SQLiteRepository) ListRuleUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM recurring_rules
		WHERE active = 1 AND deleted_at IS NULL
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list rule users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SoftDeleteRule marks a rule deleted without touching transactions
// already materialized from it.
func (r *SQLiteRepository) SoftDeleteRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_rules
		SET deleted_at = datetime('now'), updated_at = datetime('now'), active = 0
		WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete rule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// TransactionFilters narrows ListTransactions. Zero values match
// everything.
type TransactionFilters struct {
	From time.Time
	To   time.Time
	Type core.TransactionType
}

// CreateTransaction inserts a manually captured transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("validate transaction: %w", err)
	}
	return r.insertTransaction(ctx, t)
}

// CreateMaterialized inserts a transaction produced from a rule. The
// unique (rule, period, repayment) index is the real guard against a
// concurrent run inserting the same obligation; a collision surfaces as
// ErrDuplicateInstance.
func (r *SQLiteRepository) CreateMaterialized(ctx context.Context, t core.Transaction) (int64, error) {
	if t.RuleID == 0 || t.Period == "" {
		return 0, errors.New("materialized transaction requires rule id and period")
	}
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("validate transaction: %w", err)
	}
	id, err := r.insertTransaction(ctx, t)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("rule %d period %s: %w", t.RuleID, t.Period, ErrDuplicateInstance)
		}
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepository) insertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var ruleID, period any
	if t.RuleID != 0 {
		ruleID = t.RuleID
		period = t.Period
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(user_id, amount, type, category, payment_source,
			 is_deferred_repayment, date, recurring_rule_id, period)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount.String(), string(t.Type), t.Category, string(t.Source),
		t.DeferredRepayment, t.Date.UTC().Format(dateLayout), ruleID, period,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction insert id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"user_id", t.UserID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"rule_id", t.RuleID,
		"period", t.Period)

	return id, nil
}

// GetTransaction returns one transaction by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, type, category, payment_source,
		       is_deferred_repayment, date, recurring_rule_id, period
		FROM transactions
		WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns one user's transactions, newest first,
// narrowed by the filters.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f TransactionFilters) ([]core.Transaction, error) {
	query := `
		SELECT id, user_id, amount, type, category, payment_source,
		       is_deferred_repayment, date, recurring_rule_id, period
		FROM transactions
		WHERE user_id = ? AND deleted_at IS NULL`
	args := []any{userID}

	if !f.From.IsZero() {
		query += " AND date >= ?"
		args = append(args, f.From.UTC().Format(dateLayout))
	}
	if !f.To.IsZero() {
		query += " AND date <= ?"
		args = append(args, f.To.UTC().Format(dateLayout))
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// SoftDeleteTransaction marks a transaction deleted. The partial unique
// index ignores deleted rows, so a deleted materialized transaction can
// be re-materialized by the next job run.
func (r *SQLiteRepository) SoftDeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET deleted_at = datetime('now')
		WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// HasMaterialized reports whether a transaction for (rule, period,
// repayment) already exists. The check is best effort; the unique index
// is the safety net when two runs race.
func (r *SQLiteRepository) HasMaterialized(ctx context.Context, ruleID int64, period string, repayment bool) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM transactions
		WHERE recurring_rule_id = ? AND period = ? AND is_deferred_repayment = ?
		  AND deleted_at IS NULL`,
		ruleID, period, repayment,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("duplicate check rule %d period %s: %w", ruleID, period, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.Rule, error) {
	var (
		rule       core.Rule
		amount     string
		source     string
		direction  string
		cadence    string
		dayOfMonth sql.NullInt64
		weekday    sql.NullInt64
		startDate  string
		endDate    sql.NullString
	)
	err := row.Scan(&rule.ID, &rule.UserID, &amount, &rule.Category, &source,
		&rule.Description, &direction, &cadence, &dayOfMonth, &weekday,
		&startDate, &endDate, &rule.Active)
	if err != nil {
		return core.Rule{}, err
	}

	rule.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Rule{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rule.Source = core.PaymentSource(source)
	rule.Direction = core.Direction(direction)
	rule.Cadence = core.Cadence(cadence)
	if dayOfMonth.Valid {
		rule.DayOfMonth = int(dayOfMonth.Int64)
	}
	if weekday.Valid {
		wd := int(weekday.Int64)
		rule.Weekday = &wd
	}
	rule.StartDate, err = time.Parse(dateLayout, startDate)
	if err != nil {
		return core.Rule{}, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	if endDate.Valid && endDate.String != "" {
		rule.EndDate, err = time.Parse(dateLayout, endDate.String)
		if err != nil {
			return core.Rule{}, fmt.Errorf("parse end date %q: %w", endDate.String, err)
		}
	}
	return rule, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		amount string
		typ    string
		source string
		date   string
		ruleID sql.NullInt64
		period sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &amount, &typ, &t.Category, &source,
		&t.DeferredRepayment, &date, &ruleID, &period)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Type = core.TransactionType(typ)
	t.Source = core.PaymentSource(source)
	t.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if ruleID.Valid {
		t.RuleID = ruleID.Int64
	}
	if period.Valid {
		t.Period = period.String
	}
	return t, nil
}
