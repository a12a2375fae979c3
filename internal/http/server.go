// Package http exposes the forecasting service as a JSON API. The
// handlers are thin: they validate external input at the boundary and
// delegate everything else to the services layer.
package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/middleware/ratelimit"
	"github.com/dankozobeats/Voicetracker-sub001/internal/middleware/security"
	"github.com/dankozobeats/Voicetracker-sub001/internal/middleware/trace"
	"github.com/dankozobeats/Voicetracker-sub001/internal/services"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// RuleRepository is the slice of storage the rule handlers need.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule core.Rule) (int64, error)
	GetRule(ctx context.Context, id int64) (core.Rule, error)
	ListRules(ctx context.Context, userID string) ([]core.Rule, error)
	SoftDeleteRule(ctx context.Context, id int64) error
}

// TransactionRepository covers the read side of the ledger; writes go
// through the transaction service so events get published.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, userID string, f storage.TransactionFilters) ([]core.Transaction, error)
}

type Server struct {
	http.Server

	forecasts    *services.ForecastService
	txns         *services.TransactionService
	txnReads     TransactionRepository
	rules        RuleRepository
	limiter      *ratelimit.Limiter
	logger       *applog.Logger
	shutdownOnce sync.Once
}

func NewServer(addr string, forecasts *services.ForecastService, txns *services.TransactionService, txnReads TransactionRepository, rules RuleRepository) *Server {
	mux := http.NewServeMux()
	tracer := trace.NewMiddleware()
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	limited := limiter.Wrap(trace.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	})

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: tracer.Wrap(headers.Wrap(limited(mux))),
		},
		forecasts: forecasts,
		txns:      txns,
		txnReads:  txnReads,
		rules:     rules,
		limiter:   limiter,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleHealth)
	mux.HandleFunc("/api/v1/forecast", s.handleForecast)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.HandleFunc("/api/v1/rules/", s.handleRuleByID)
	mux.HandleFunc("/api/v1/transactions", s.handleTransactions)
	mux.HandleFunc("/api/v1/transactions/", s.handleTransactionByID)

	return s
}

// Shutdown stops the rate limiter's cleanup goroutine along with the
// embedded server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
