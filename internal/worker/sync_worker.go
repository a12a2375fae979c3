// Package worker follows the ledger from the outside: it consumes
// transaction events off the broker and appends the full records to an
// export log, so downstream tooling can track the ledger without
// querying the database.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

// TransactionGetter resolves event ids to full ledger records.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
}

// Exporter appends one ledger-change record to the export target.
type Exporter interface {
	Export(record ExportRecord) error
}

// ExportRecord is one line of the export log.
type ExportRecord struct {
	Kind          string    `json:"kind"`
	TransactionID int64     `json:"transaction_id"`
	UserID        string    `json:"user_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Type          string    `json:"type,omitempty"`
	Category      string    `json:"category,omitempty"`
	Date          string    `json:"date,omitempty"`
	RuleID        int64     `json:"rule_id,omitempty"`
	Period        string    `json:"period,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SyncWorker handles transaction events from the broker.
type SyncWorker struct {
	txns     TransactionGetter
	exporter Exporter
	logger   *applog.Logger
}

func NewSyncWorker(txns TransactionGetter, exporter Exporter) *SyncWorker {
	return &SyncWorker{
		txns:     txns,
		exporter: exporter,
		logger:   applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker),
	}
}

// HandleTransactionEvent exports one ledger change. Returning an error
// requeues the event, so unknown kinds and records that vanished before
// we caught up are logged and acknowledged instead.
func (w *SyncWorker) HandleTransactionEvent(ctx context.Context, event *amqp.TransactionEvent) error {
	switch event.Kind {
	case amqp.EventCreated, amqp.EventMaterialized:
		txn, err := w.txns.GetTransaction(ctx, event.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				w.logger.WarnContext(ctx, "Transaction gone before export, skipping",
					applog.FieldTxnID, event.ID, "kind", event.Kind)
				return nil
			}
			return fmt.Errorf("get transaction %d: %w", event.ID, err)
		}
		return w.exporter.Export(recordFromTransaction(event, txn))
	case amqp.EventDeleted:
		return w.exporter.Export(ExportRecord{
			Kind:          event.Kind,
			TransactionID: event.ID,
			Timestamp:     event.Timestamp,
		})
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event kind",
			"kind", event.Kind, applog.FieldTxnID, event.ID)
		return nil
	}
}

func recordFromTransaction(event *amqp.TransactionEvent, txn core.Transaction) ExportRecord {
	return ExportRecord{
		Kind:          event.Kind,
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Amount:        txn.Amount.String(),
		Type:          string(txn.Type),
		Category:      txn.Category,
		Date:          txn.Date.Format("2006-01-02"),
		RuleID:        txn.RuleID,
		Period:        txn.Period,
		Timestamp:     event.Timestamp,
	}
}
