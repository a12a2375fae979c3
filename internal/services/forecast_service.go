package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/cache"
	"github.com/dankozobeats/Voicetracker-sub001/internal/forecast"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// ForecastService computes cash-flow forecasts for users, caching
// results so dashboard refreshes do not recompute identical windows.
type ForecastService struct {
	rules          RuleStore
	txns           TransactionStore
	defaultHorizon int
	cache          *cache.LRUCache[forecast.Result]
	logger         *applog.Logger
}

func NewForecastService(rules RuleStore, txns TransactionStore, defaultHorizon, cacheSize int, cacheTTL time.Duration) *ForecastService {
	if defaultHorizon < 1 {
		defaultHorizon = forecast.DefaultHorizonMonths
	}
	return &ForecastService{
		rules:          rules,
		txns:           txns,
		defaultHorizon: defaultHorizon,
		cache:          cache.NewLRUCache[forecast.Result](cacheSize, cacheTTL),
		logger:         applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentForecast),
	}
}

// Forecast returns the instances and month summaries for one user's
// window. Storage errors propagate to the caller; engine-level rule
// problems degrade inside the engine and never surface here.
func (s *ForecastService) Forecast(ctx context.Context, userID string, opts forecast.Options) (forecast.Result, error) {
	if opts.HorizonMonths == 0 {
		opts.HorizonMonths = s.defaultHorizon
	}
	if opts.StartMonth == "" {
		// Pin the default window now so a cached entry cannot outlive
		// a month rollover inside its TTL.
		opts.StartMonth = forecast.MonthKey(time.Now().UTC())
	}
	key := fmt.Sprintf("%s|%s|%d", userID, opts.StartMonth, opts.HorizonMonths)
	if result, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "Forecast served from cache", applog.FieldUserID, userID, "key", key)
		return result, nil
	}

	rules, err := s.rules.ListRules(ctx, userID)
	if err != nil {
		return forecast.Result{}, fmt.Errorf("list rules: %w", err)
	}
	txns, err := s.txns.ListTransactions(ctx, userID, storage.TransactionFilters{})
	if err != nil {
		return forecast.Result{}, fmt.Errorf("list transactions: %w", err)
	}

	result, err := forecast.Generate(rules, txns, opts)
	if err != nil {
		return forecast.Result{}, fmt.Errorf("generate forecast: %w", err)
	}

	s.cache.Set(key, result)
	s.logger.InfoContext(ctx, "Forecast computed",
		applog.FieldOperation, applog.OpForecast,
		applog.FieldUserID, userID,
		"start_month", result.Months[0].Month,
		applog.FieldHorizon, len(result.Months),
		"instances", len(result.Instances))

	return result, nil
}

// Invalidate drops every cached forecast. Called after any write that
// can change a forecast; windows are too cheap to recompute to justify
// finer-grained invalidation.
func (s *ForecastService) Invalidate() {
	s.cache.Clear()
}
