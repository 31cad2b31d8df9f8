package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op is the kind of ledger change carried by a sync message.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpUpsert || o == OpDelete
}

// TransactionSyncMessage announces that a transaction changed. It carries
// only the id and row version; the worker reads the row itself.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	Version   int64     `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id string, op Op, version int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		Op:        op,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON decodes and checks a message body.
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("sync message without id")
	}
	if !msg.Op.Valid() {
		return nil, fmt.Errorf("sync message %s: unknown op %q", msg.ID, msg.Op)
	}
	return &msg, nil
}
