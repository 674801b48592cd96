package types

import (
	"encoding/json"
	"time"
)

// Queue entry actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// ValidAction reports whether a is a recognized queue action.
func ValidAction(a string) bool {
	return a == ActionCreate || a == ActionUpdate
}

// QueueEntry is one pending write in the sync queue. Entries are immutable
// once written: they are only ever read in queue_id order and deleted after
// a successful replay. QueueID is assigned by the store at insertion and
// defines replay order; CreatedAt is informational only.
type QueueEntry struct {
	QueueID   int64           `json:"queue_id"`
	Action    string          `json:"action"`
	TableName string          `json:"table_name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Snapshot is the decoded form of a queue entry payload: the record's
// display identifier at enqueue time plus the domain fields needed to
// replay the write remotely.
type Snapshot struct {
	DisplayID string         `json:"display_id"`
	Fields    map[string]any `json:"fields"`
}

// DecodeSnapshot parses a queue entry payload.
func DecodeSnapshot(payload json.RawMessage) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// EncodeSnapshot serializes a payload snapshot for enqueueing.
func EncodeSnapshot(s Snapshot) (json.RawMessage, error) {
	return json.Marshal(s)
}
