package amqp

import (
	"encoding/json"
	"time"
)

// TransactionEvent is the message published whenever the ledger changes:
// a transaction was captured, materialized from a recurring rule, or
// deleted. It carries only identifiers; consumers fetch the full record
// from the database.
type TransactionEvent struct {
	Kind      string    `json:"kind"` // created | materialized | deleted
	ID        int64     `json:"id"`
	RuleID    int64     `json:"rule_id,omitempty"`
	Period    string    `json:"period,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventCreated      = "created"
	EventMaterialized = "materialized"
	EventDeleted      = "deleted"
)

// NewTransactionEvent creates an event for a ledger change.
func NewTransactionEvent(kind string, id int64) *TransactionEvent {
	return &TransactionEvent{
		Kind:      kind,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON creates an event from JSON bytes.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
