package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
)

const maxBodyBytes = 64 << 10 // 64KB, generous for JSON payloads

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse("2006-01-02", dateStr)
}

// pathID extracts the trailing numeric id from a path like
// /api/v1/rules/42.
func pathID(path, prefix string) (int64, error) {
	raw := strings.TrimPrefix(path, prefix)
	raw = strings.Trim(raw, "/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("missing id in path %q", path)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// requireUser reads the user query parameter, the owner scope of every
// collection endpoint.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user parameter")
		return "", false
	}
	return user, true
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// API views. Amounts travel as decimal strings, dates as ISO dates and
// months as YYYY-MM keys.

type ruleView struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Source      string `json:"payment_source"`
	Description string `json:"description,omitempty"`
	Direction   string `json:"direction"`
	Cadence     string `json:"cadence"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	Weekday     *int   `json:"weekday,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Active      bool   `json:"active"`
}

func viewRule(r core.Rule) ruleView {
	v := ruleView{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      r.Amount.String(),
		Category:    r.Category,
		Source:      string(r.Source),
		Description: r.Description,
		Direction:   string(r.Direction),
		Cadence:     string(r.Cadence),
		DayOfMonth:  r.DayOfMonth,
		Weekday:     r.Weekday,
		StartDate:   r.StartDate.Format("2006-01-02"),
		Active:      r.Active,
	}
	if !r.EndDate.IsZero() {
		v.EndDate = r.EndDate.Format("2006-01-02")
	}
	return v
}

type transactionView struct {
	ID                int64  `json:"id"`
	UserID            string `json:"user_id"`
	Amount            string `json:"amount"`
	Type              string `json:"type"`
	Category          string `json:"category,omitempty"`
	Source            string `json:"payment_source"`
	DeferredRepayment bool   `json:"is_deferred_repayment,omitempty"`
	Date              string `json:"date"`
	RuleID            int64  `json:"recurring_rule_id,omitempty"`
	Period            string `json:"period,omitempty"`
}

func viewTransaction(t core.Transaction) transactionView {
	return transactionView{
		ID:                t.ID,
		UserID:            t.UserID,
		Amount:            t.Amount.String(),
		Type:              string(t.Type),
		Category:          t.Category,
		Source:            string(t.Source),
		DeferredRepayment: t.DeferredRepayment,
		Date:              t.Date.Format("2006-01-02"),
		RuleID:            t.RuleID,
		Period:            t.Period,
	}
}

type instanceView struct {
	RuleID      int64  `json:"rule_id"`
	DueDate     string `json:"due_date"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Direction   string `json:"direction"`
	Source      string `json:"payment_source"`
	Kind        string `json:"kind"`
	Period      string `json:"period"`
}

func viewInstance(i core.Instance) instanceView {
	return instanceView{
		RuleID:      i.RuleID,
		DueDate:     i.DueDate.Format("2006-01-02"),
		Amount:      i.Amount.String(),
		Category:    i.Category,
		Description: i.Description,
		Direction:   string(i.Direction),
		Source:      string(i.Source),
		Kind:        string(i.Kind),
		Period:      i.Period,
	}
}

type monthSummaryView struct {
	Month              string `json:"month"`
	Income             string `json:"income"`
	Expenses           string `json:"expenses"`
	NormalCharges      string `json:"normal_charges"`
	DeferredRepayments string `json:"deferred_repayments"`
	OverdraftIn        string `json:"overdraft_in"`
	OverdraftOut       string `json:"overdraft_out"`
	FinalBalance       string `json:"final_balance"`
}

func viewMonthSummary(m core.MonthSummary) monthSummaryView {
	return monthSummaryView{
		Month:              m.Month,
		Income:             m.Income.String(),
		Expenses:           m.Expenses.String(),
		NormalCharges:      m.NormalCharges.String(),
		DeferredRepayments: m.DeferredRepayments.String(),
		OverdraftIn:        m.OverdraftIn.String(),
		OverdraftOut:       m.OverdraftOut.String(),
		FinalBalance:       m.FinalBalance.String(),
	}
}
