// Package services orchestrates the forecasting engine against the
// storage and messaging collaborators: fetching rules and transactions,
// caching computed forecasts, and running the scheduled job that turns
// due instances into real transactions.
package services

import (
	"context"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// RuleStore is the slice of the repository the forecasting services
// need for recurring rules.
type RuleStore interface {
	ListRules(ctx context.Context, userID string) ([]core.Rule, error)
	ListRuleUsers(ctx context.Context) ([]string, error)
}

// TransactionStore is the slice of the repository covering the ledger.
type TransactionStore interface {
	ListTransactions(ctx context.Context, userID string, f storage.TransactionFilters) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (int64, error)
	SoftDeleteTransaction(ctx context.Context, id int64) error
	HasMaterialized(ctx context.Context, ruleID int64, period string, repayment bool) (bool, error)
	CreateMaterialized(ctx context.Context, t core.Transaction) (int64, error)
}

// EventPublisher pushes ledger-change events to the message broker.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event *amqp.TransactionEvent) error
}
