package types

// EventSink receives sync outcome notifications for user-facing display.
// Implementations must be safe for calls from the drain goroutine.
type EventSink interface {
	// SyncStarted is called once at the beginning of a drain pass that
	// found the remote reachable and the queue non-empty.
	SyncStarted()

	// EntryApplied is called after a queue entry replays successfully.
	// newID equals oldID unless a provisional identifier was reconciled
	// to its canonical form.
	EntryApplied(table, oldID, newID string)

	// EntryFailed is called when a queue entry's replay fails; the entry
	// is retained for a later pass.
	EntryFailed(table, reason string)

	// EntryPoisoned is called once when an entry crosses the consecutive
	// failure threshold and is parked for manual intervention.
	EntryPoisoned(table, id string, attempts int)

	// SyncFinished is called at the end of a drain pass with the number
	// of entries applied and failed.
	SyncFinished(applied, failed int)
}

// NopSink is an EventSink that discards all notifications.
type NopSink struct{}

func (NopSink) SyncStarted() {}

func (NopSink) EntryApplied(table, oldID, newID string) {}

func (NopSink) EntryFailed(table, reason string) {}

func (NopSink) EntryPoisoned(table, id string, attempts int) {}

func (NopSink) SyncFinished(applied, failed int) {}
