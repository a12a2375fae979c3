package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/core"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

type fakeGetter struct {
	txns map[int64]core.Transaction
	err  error
}

func (f *fakeGetter) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	if f.err != nil {
		return core.Transaction{}, f.err
	}
	txn, ok := f.txns[id]
	if !ok {
		return core.Transaction{}, storage.ErrNotFound
	}
	return txn, nil
}

type captureExporter struct {
	records []ExportRecord
	err     error
}

func (c *captureExporter) Export(record ExportRecord) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, record)
	return nil
}

func TestHandleTransactionEventExportsFullRecord(t *testing.T) {
	getter := &fakeGetter{txns: map[int64]core.Transaction{7: {
		ID:       7,
		UserID:   "alice",
		Amount:   decimal.RequireFromString("9.99"),
		Type:     core.TxnExpense,
		Category: "subscriptions",
		Date:     time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		RuleID:   3,
		Period:   "2024-06",
	}}}
	exporter := &captureExporter{}
	w := NewSyncWorker(getter, exporter)

	event := &amqp.TransactionEvent{Kind: amqp.EventMaterialized, ID: 7, RuleID: 3, Period: "2024-06"}
	if err := w.HandleTransactionEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(exporter.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(exporter.records))
	}
	rec := exporter.records[0]
	if rec.Kind != amqp.EventMaterialized || rec.TransactionID != 7 {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.Amount != "9.99" || rec.Date != "2024-06-10" || rec.Period != "2024-06" {
		t.Errorf("unexpected payload: %+v", rec)
	}
}

func TestHandleTransactionEventDeleted(t *testing.T) {
	exporter := &captureExporter{}
	w := NewSyncWorker(&fakeGetter{}, exporter)

	event := &amqp.TransactionEvent{Kind: amqp.EventDeleted, ID: 4}
	if err := w.HandleTransactionEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(exporter.records) != 1 || exporter.records[0].UserID != "" {
		t.Fatalf("expected bare tombstone record, got %+v", exporter.records)
	}
}

func TestHandleTransactionEventMissingRecordAcked(t *testing.T) {
	exporter := &captureExporter{}
	w := NewSyncWorker(&fakeGetter{}, exporter)

	event := &amqp.TransactionEvent{Kind: amqp.EventCreated, ID: 99}
	if err := w.HandleTransactionEvent(context.Background(), event); err != nil {
		t.Fatalf("missing record should not requeue: %v", err)
	}
	if len(exporter.records) != 0 {
		t.Fatalf("expected no export, got %+v", exporter.records)
	}
}

func TestHandleTransactionEventStorageErrorRequeues(t *testing.T) {
	getter := &fakeGetter{err: errors.New("db locked")}
	w := NewSyncWorker(getter, &captureExporter{})

	event := &amqp.TransactionEvent{Kind: amqp.EventCreated, ID: 1}
	if err := w.HandleTransactionEvent(context.Background(), event); err == nil {
		t.Fatal("expected error for storage failure")
	}
}

func TestHandleTransactionEventUnknownKindIgnored(t *testing.T) {
	exporter := &captureExporter{}
	w := NewSyncWorker(&fakeGetter{}, exporter)

	event := &amqp.TransactionEvent{Kind: "rebalanced", ID: 1}
	if err := w.HandleTransactionEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown kind should be acked: %v", err)
	}
	if len(exporter.records) != 0 {
		t.Fatalf("expected no export, got %+v", exporter.records)
	}
}
