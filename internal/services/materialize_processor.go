package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	"github.com/dankozobeats/Voicetracker-sub001/internal/forecast"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// MaterializeProcessor turns due recurring instances into real
// transactions. Runs are idempotent: the engine's deduplication filters
// instances already in the ledger, a per-instance duplicate check skips
// the rest, and the storage unique index catches any concurrent run
// that slips past both.
//
// Each rule's materialization is independent, so a run cut short by its
// deadline leaves a consistent ledger and the next run picks up the
// remainder.
type MaterializeProcessor struct {
	rules     RuleStore
	txns      TransactionStore
	publisher EventPublisher
	logger    *applog.Logger
}

func NewMaterializeProcessor(rules RuleStore, txns TransactionStore, publisher EventPublisher) *MaterializeProcessor {
	return &MaterializeProcessor{
		rules:     rules,
		txns:      txns,
		publisher: publisher,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker),
	}
}

// ProcessDueInstances materializes every instance of the current month
// whose due date has passed, across all users with active rules.
// Returns the number of transactions created. Per-user and per-instance
// failures are logged and skipped, never fatal for the run.
func (p *MaterializeProcessor) ProcessDueInstances(ctx context.Context, now time.Time) (int, error) {
	if p.rules == nil || p.txns == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.rules.ListRuleUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rule users: %w", err)
	}

	monthKey := forecast.MonthKey(now)
	p.logger.InfoContext(ctx, "Materializing due recurring instances",
		applog.FieldOperation, applog.OpMaterialize,
		"users", len(users),
		applog.FieldMonth, monthKey,
		"processing_date", now.Format("2006-01-02"))

	total := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			p.logger.WarnContext(ctx, "Materialization run cut short", applog.FieldError, err, "created_so_far", total)
			return total, err
		}
		created, err := p.processUser(ctx, user, monthKey, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process user",
				applog.FieldUserID, user,
				applog.FieldError, err)
			continue
		}
		total += created
	}

	p.logger.InfoContext(ctx, "Materialization run complete",
		applog.FieldOperation, applog.OpMaterialize,
		"created", total,
		"users", len(users))

	return total, nil
}

func (p *MaterializeProcessor) processUser(ctx context.Context, userID, monthKey string, now time.Time) (int, error) {
	rules, err := p.rules.ListRules(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		return 0, nil
	}
	txns, err := p.txns.ListTransactions(ctx, userID, storage.TransactionFilters{})
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	cutoff := forecast.NormalizeToAnchor(now)
	created := 0
	for _, inst := range forecast.Materialize(rules, []string{monthKey}, txns) {
		if inst.DueDate.After(cutoff) {
			continue
		}

		repayment := inst.Kind == core.KindCarryover
		exists, err := p.txns.HasMaterialized(ctx, inst.RuleID, inst.Period, repayment)
		if err != nil {
			// Skipping is the safe side: inserting without a successful
			// check risks a duplicate if the unique index were missing.
			p.logger.ErrorContext(ctx, "Duplicate check failed, skipping instance",
				applog.FieldRuleID, inst.RuleID,
				applog.FieldPeriod, inst.Period,
				applog.FieldError, err)
			continue
		}
		if exists {
			continue
		}

		id, err := p.txns.CreateMaterialized(ctx, transactionFromInstance(userID, inst))
		if errors.Is(err, storage.ErrDuplicateInstance) {
			p.logger.InfoContext(ctx, "Lost materialization race, instance already exists",
				applog.FieldRuleID, inst.RuleID,
				applog.FieldPeriod, inst.Period)
			continue
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to materialize instance",
				applog.FieldRuleID, inst.RuleID,
				applog.FieldPeriod, inst.Period,
				applog.FieldError, err)
			continue
		}

		if p.publisher != nil {
			event := amqp.NewTransactionEvent(amqp.EventMaterialized, id)
			event.RuleID = inst.RuleID
			event.Period = inst.Period
			if err := p.publisher.PublishTransactionEvent(ctx, event); err != nil {
				p.logger.ErrorContext(ctx, "Failed to publish materialized event",
					applog.FieldTxnID, id, applog.FieldError, err)
			}
		}

		created++
		p.logger.InfoContext(ctx, "Materialized recurring instance",
			applog.FieldTxnID, id,
			applog.FieldRuleID, inst.RuleID,
			applog.FieldPeriod, inst.Period,
			"kind", inst.Kind,
			applog.FieldAmount, inst.Amount.String())
	}
	return created, nil
}

func transactionFromInstance(userID string, inst core.Instance) core.Transaction {
	txnType := core.TxnExpense
	if inst.Direction == core.DirectionIncome {
		txnType = core.TxnIncome
	}
	return core.Transaction{
		UserID:            userID,
		Amount:            inst.Amount,
		Type:              txnType,
		Category:          inst.Category,
		Source:            inst.Source,
		DeferredRepayment: inst.Kind == core.KindCarryover,
		Date:              inst.DueDate,
		RuleID:            inst.RuleID,
		Period:            inst.Period,
	}
}
