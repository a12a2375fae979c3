package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	"github.com/dankozobeats/Voicetracker-sub001/internal/forecast"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	opts := forecast.Options{
		StartMonth: strings.TrimSpace(r.URL.Query().Get("start")),
	}
	if opts.StartMonth != "" {
		if _, err := forecast.ParseMonthKey(opts.StartMonth); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "start must be a YYYY-MM month key")
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("months")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 36 {
			writeError(w, http.StatusUnprocessableEntity, "months must be an integer between 1 and 36")
			return
		}
		opts.HorizonMonths = n
	}

	result, err := s.forecasts.Forecast(r.Context(), user, opts)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Forecast failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute forecast")
		return
	}

	instances := make([]instanceView, 0, len(result.Instances))
	for _, inst := range result.Instances {
		instances = append(instances, viewInstance(inst))
	}
	months := make([]monthSummaryView, 0, len(result.Months))
	for _, m := range result.Months {
		months = append(months, viewMonthSummary(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instances":       instances,
		"month_summaries": months,
	})
}

type ruleRequest struct {
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Source      string `json:"payment_source"`
	Description string `json:"description"`
	Direction   string `json:"direction"`
	Cadence     string `json:"cadence"`
	DayOfMonth  int    `json:"day_of_month"`
	Weekday     *int   `json:"weekday"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRules(w, r)
	case http.MethodPost:
		s.createRule(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	rules, err := s.rules.ListRules(r.Context(), user)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list rules", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, viewRule(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": views})
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a positive decimal")
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "start_date must be YYYY-MM-DD")
		return
	}
	var endDate time.Time
	if req.EndDate != "" {
		endDate, err = parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "end_date must be YYYY-MM-DD")
			return
		}
	}
	source := core.PaymentSource(req.Source)
	if req.Source == "" {
		source = core.SourceNormal
	}
	if !source.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "payment_source must be normal or deferred")
		return
	}

	rule := core.Rule{
		UserID:      strings.TrimSpace(req.UserID),
		Amount:      amount,
		Category:    strings.TrimSpace(req.Category),
		Source:      source,
		Description: strings.TrimSpace(req.Description),
		Direction:   core.Direction(req.Direction),
		Cadence:     core.Cadence(req.Cadence),
		DayOfMonth:  req.DayOfMonth,
		Weekday:     req.Weekday,
		StartDate:   startDate,
		EndDate:     endDate,
		Active:      true,
	}
	if rule.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.rules.CreateRule(r.Context(), rule)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to create rule", "user_id", rule.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}
	rule.ID = id
	s.forecasts.Invalidate()
	writeJSON(w, http.StatusCreated, viewRule(rule))
}

func (s *Server) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/api/v1/rules")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getRule(w, r, id)
	case http.MethodDelete:
		s.deleteRule(w, r, id)
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request, id int64) {
	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to get rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, viewRule(rule))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.rules.SoftDeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to delete rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	s.forecasts.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

type transactionRequest struct {
	UserID            string `json:"user_id"`
	Amount            string `json:"amount"`
	Type              string `json:"type"`
	Category          string `json:"category"`
	Source            string `json:"payment_source"`
	DeferredRepayment bool   `json:"is_deferred_repayment"`
	Date              string `json:"date"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var filters storage.TransactionFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "from must be YYYY-MM-DD")
			return
		}
		filters.From = from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "to must be YYYY-MM-DD")
			return
		}
		filters.To = to
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		t := core.TransactionType(raw)
		if !t.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "type must be income, expense or transfer")
			return
		}
		filters.Type = t
	}

	txns, err := s.txnReads.ListTransactions(r.Context(), user, filters)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list transactions", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	views := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, viewTransaction(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a positive decimal")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "date must be YYYY-MM-DD")
		return
	}
	source := core.PaymentSource(req.Source)
	if req.Source == "" {
		source = core.SourceNormal
	}

	txn := core.Transaction{
		UserID:            strings.TrimSpace(req.UserID),
		Amount:            amount,
		Type:              core.TransactionType(req.Type),
		Category:          strings.TrimSpace(req.Category),
		Source:            source,
		DeferredRepayment: req.DeferredRepayment,
		Date:              date,
	}
	if txn.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	if err := txn.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.txns.Create(r.Context(), txn)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to create transaction", "user_id", txn.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}
	txn.ID = id
	s.forecasts.Invalidate()
	writeJSON(w, http.StatusCreated, viewTransaction(txn))
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "DELETE")
		return
	}
	id, err := pathID(r.URL.Path, "/api/v1/transactions")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if err := s.txns.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to delete transaction", "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	s.forecasts.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}
