package types

import (
	"strings"
	"time"
)

// Sync states. A record moves from unsynced to pending while its queue
// entry is being replayed, and to synced once the remote write succeeds.
const (
	SyncStateUnsynced = "unsynced"
	SyncStatePending  = "pending"
	SyncStateSynced   = "synced"
)

// validSyncStates is the set of recognized sync state values.
var validSyncStates = map[string]bool{
	SyncStateUnsynced: true,
	SyncStatePending:  true,
	SyncStateSynced:   true,
}

// ValidSyncState reports whether s is a recognized sync state.
func ValidSyncState(s string) bool {
	return validSyncStates[s]
}

// Registered domain tables.
const (
	TablePatients     = "patients"
	TableChildren     = "children"
	TableAppointments = "appointments"
)

// DisplayPrefixes maps each domain table to the prefix of its canonical
// display identifier (e.g. patients -> "P", so the third patient is P-003).
var DisplayPrefixes = map[string]string{
	TablePatients:     "P",
	TableChildren:     "C",
	TableAppointments: "A",
}

// KnownTable reports whether name is a registered domain table.
func KnownTable(name string) bool {
	_, ok := DisplayPrefixes[name]
	return ok
}

// ProvisionalPrefix tags display identifiers allocated while offline.
// A provisional identifier is replaced by a canonical one at sync time
// and never reused afterwards.
const ProvisionalPrefix = "TEMP-"

// IsProvisional reports whether id is a locally allocated provisional
// display identifier.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Record is a row in a domain table. The sync core treats Fields as an
// opaque payload; only DisplayID and SyncState are interpreted.
type Record struct {
	LocalKey  int64          `json:"local_key"`
	DisplayID string         `json:"display_id"`
	Fields    map[string]any `json:"fields"`
	SyncState string         `json:"sync_state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
