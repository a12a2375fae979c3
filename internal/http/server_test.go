package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	"github.com/dankozobeats/Voicetracker-sub001/internal/services"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// fakeStore backs every repository interface the server needs.
type fakeStore struct {
	rules  []core.Rule
	txns   []core.Transaction
	nextID int64
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateRule(ctx context.Context, rule core.Rule) (int64, error) {
	rule.ID = f.id()
	f.rules = append(f.rules, rule)
	return rule.ID, nil
}

func (f *fakeStore) ListRules(ctx context.Context, userID string) ([]core.Rule, error) {
	var out []core.Rule
	for _, r := range f.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id int64) (core.Rule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return core.Rule{}, storage.ErrNotFound
}

func (f *fakeStore) ListRuleUsers(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) SoftDeleteRule(ctx context.Context, id int64) error {
	for i, r := range f.rules {
		if r.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID string, filters storage.TransactionFilters) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range f.txns {
		if t.UserID != userID {
			continue
		}
		if filters.Type != "" && t.Type != filters.Type {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	t.ID = f.id()
	f.txns = append(f.txns, t)
	return t.ID, nil
}

func (f *fakeStore) SoftDeleteTransaction(ctx context.Context, id int64) error {
	for i, t := range f.txns {
		if t.ID == id {
			f.txns = append(f.txns[:i], f.txns[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) HasMaterialized(ctx context.Context, ruleID int64, period string, repayment bool) (bool, error) {
	return false, nil
}

func (f *fakeStore) CreateMaterialized(ctx context.Context, t core.Transaction) (int64, error) {
	return f.CreateTransaction(ctx, t)
}

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	forecasts := services.NewForecastService(store, store, 3, 10, time.Minute)
	txns := services.NewTransactionService(store, nil)
	srv := NewServer(":0", forecasts, txns, store, store)
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}

func TestWriteRequestsAreRateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	body := `{"user_id":"alice","amount":"5","type":"expense","category":"coffee","date":"2024-06-15"}`
	for i := 0; i < 60; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/v1/transactions", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d: status=%d", i+1, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/v1/transactions", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After header")
	}
	if !strings.Contains(rr.Body.String(), "rate limit") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}

	// Reads keep working while the write budget is spent.
	if rr := do(t, srv, http.MethodGet, "/api/v1/transactions?user=alice", ""); rr.Code != http.StatusOK {
		t.Fatalf("read after limit: status=%d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestForecastValidation(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	if rr := do(t, srv, http.MethodPost, "/api/v1/forecast?user=alice", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/forecast", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/forecast?user=alice&start=06-2024", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad start: expected 422, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/forecast?user=alice&months=40", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad months: expected 422, got %d", rr.Code)
	}
}

func TestForecastReturnsInstancesAndSummaries(t *testing.T) {
	store := &fakeStore{
		rules: []core.Rule{{
			ID:        1,
			UserID:    "alice",
			Amount:    decimal.RequireFromString("9.99"),
			Category:  "subscriptions",
			Source:    core.SourceNormal,
			Direction: core.DirectionExpense,
			Cadence:   core.CadenceMonthly,
			StartDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Active:    true,
		}},
		nextID: 1,
	}
	srv := newTestServer(t, store)

	rr := do(t, srv, http.MethodGet, "/api/v1/forecast?user=alice&start=2024-06&months=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Instances []struct {
			RuleID int64  `json:"rule_id"`
			Period string `json:"period"`
			Amount string `json:"amount"`
		} `json:"instances"`
		Months []struct {
			Month string `json:"month"`
		} `json:"month_summaries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(resp.Instances))
	}
	if resp.Instances[0].Period != "2024-06" || resp.Instances[0].Amount != "9.99" {
		t.Fatalf("unexpected first instance: %+v", resp.Instances[0])
	}
	if len(resp.Months) != 2 || resp.Months[0].Month != "2024-06" || resp.Months[1].Month != "2024-07" {
		t.Fatalf("unexpected months: %+v", resp.Months)
	}
}

func TestCreateRuleValidationAndSuccess(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store)

	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", "{not json"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", rr.Code)
	}

	body := `{"user_id":"alice","amount":"abc","category":"rent","direction":"expense","cadence":"monthly","start_date":"2024-01-01"}`
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", body); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad amount: expected 422, got %d", rr.Code)
	}

	body = `{"amount":"800","category":"rent","direction":"expense","cadence":"monthly","start_date":"2024-01-01"}`
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", body); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", rr.Code)
	}

	body = `{"user_id":"alice","amount":"800","category":"rent","direction":"expense","cadence":"monthly","day_of_month":31,"start_date":"2024-01-01"}`
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", body); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("day 31: expected 422, got %d", rr.Code)
	}

	body = `{"user_id":"alice","amount":"800,50","category":"rent","direction":"expense","cadence":"monthly","day_of_month":1,"start_date":"2024-01-01"}`
	rr := do(t, srv, http.MethodPost, "/api/v1/rules", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID     int64  `json:"id"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID != 1 || created.Amount != "800.5" {
		t.Fatalf("unexpected created rule: %+v", created)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/rules?user=alice", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"category":"rent"`) {
		t.Fatalf("list: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetAndDeleteRule(t *testing.T) {
	store := &fakeStore{rules: []core.Rule{{ID: 1, UserID: "alice"}}, nextID: 1}
	srv := newTestServer(t, store)

	if rr := do(t, srv, http.MethodGet, "/api/v1/rules/1", ""); rr.Code != http.StatusOK ||
		!strings.Contains(rr.Body.String(), `"user_id":"alice"`) {
		t.Fatalf("get rule: status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/rules/99", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get unknown rule: expected 404, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/rules/99", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown rule: expected 404, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/rules/abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/rules/1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	if len(store.rules) != 0 {
		t.Fatalf("rule not removed")
	}
}

func TestTransactionEndpoints(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store)

	body := `{"user_id":"alice","amount":"42.10","type":"expense","category":"groceries","date":"2024-06-15"}`
	rr := do(t, srv, http.MethodPost, "/api/v1/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	body = `{"user_id":"alice","amount":"42.10","type":"loan","category":"groceries","date":"2024-06-15"}`
	if rr := do(t, srv, http.MethodPost, "/api/v1/transactions", body); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad type: expected 422, got %d", rr.Code)
	}

	if rr := do(t, srv, http.MethodGet, "/api/v1/transactions?user=alice&type=loan", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad filter type: expected 422, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/transactions?user=alice&from=15-06-2024", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad from: expected 422, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/transactions?user=alice&type=expense", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"category":"groceries"`) {
		t.Fatalf("list: status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := do(t, srv, http.MethodDelete, "/api/v1/transactions/1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/transactions/1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}
