package services

import (
	"context"
	"fmt"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
)

// TransactionService orchestrates ledger writes: persist locally first,
// then publish the change event. A broker failure never fails the
// request, the transaction is already durable in SQLite.
type TransactionService struct {
	store     TransactionStore
	publisher EventPublisher
	logger    *applog.Logger
}

func NewTransactionService(store TransactionStore, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    applog.New(applog.DefaultConfig()),
	}
}

// Create validates and persists a captured transaction, then publishes
// a created event.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("validate transaction: %w", err)
	}

	id, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventCreated, id))
	return id, nil
}

// Delete soft deletes a transaction and publishes a deleted event.
func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	if err := s.store.SoftDeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventDeleted, id))
	return nil
}

func (s *TransactionService) publish(ctx context.Context, event *amqp.TransactionEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event", "kind", event.Kind, applog.FieldTxnID, event.ID)
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			"kind", event.Kind, applog.FieldTxnID, event.ID, applog.FieldError, err)
	}
}
