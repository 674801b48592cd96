// Package engine implements the offline-first write path and the sync
// engine that drains the queue against the remote store, reconciling
// provisional identifiers to canonical ones.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openchw/fieldsync/internal/remote"
	"github.com/openchw/fieldsync/internal/sqlite"
	"github.com/openchw/fieldsync/pkg/types"
)

// RemoteClient is the slice of the backend API the engine replays writes
// against. Satisfied by *remote.Client.
type RemoteClient interface {
	Create(ctx context.Context, table string, payload map[string]any) (remote.CreatedRecord, error)
	Update(ctx context.Context, table, id string, payload map[string]any) error
}

// ConnectivitySource reports reachability and notifies on transitions.
// Satisfied by *connectivity.Monitor.
type ConnectivitySource interface {
	IsOnline() bool
	Subscribe(fn func(online bool))
}

// entryState is the in-memory retry bookkeeping for one queue entry.
// Queue rows are immutable once written, so attempt counts live here for
// the engine's lifetime; a restart resets them, which only delays
// re-parking a poison entry.
type entryState struct {
	attempts    int
	nextAttempt time.Time
	poisoned    bool
}

// Engine drains the sync queue whenever the remote is reachable. Drain
// passes are serialized: at most one runs at a time, and a trigger that
// arrives mid-pass is coalesced into one re-run after the current pass.
// Remote creates are not idempotent, so this single-flight rule is what
// prevents the same create from being submitted twice.
type Engine struct {
	store  *sqlite.Store
	remote RemoteClient
	conn   ConnectivitySource
	sink   types.EventSink
	logger *slog.Logger

	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration

	drainMu  sync.Mutex
	draining bool
	rerun    bool

	stateMu sync.Mutex
	states  map[int64]*entryState

	now func() time.Time
}

// New creates an Engine. sink may be nil, in which case notifications are
// discarded.
func New(store *sqlite.Store, rc RemoteClient, conn ConnectivitySource, sink types.EventSink, cfg types.Config, logger *slog.Logger) *Engine {
	if sink == nil {
		sink = types.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		remote:      rc,
		conn:        conn,
		sink:        sink,
		logger:      logger.With(slog.String("component", "sync_engine")),
		maxAttempts: cfg.MaxAttempts,
		backoffMin:  cfg.BackoffMin,
		backoffMax:  cfg.BackoffMax,
		states:      make(map[int64]*entryState),
		now:         time.Now,
	}
}

// Start subscribes the engine to connectivity transitions so every Online
// transition triggers a drain. Duplicate Online notifications are
// harmless: the extra drain either coalesces or finds an empty queue.
func (e *Engine) Start(ctx context.Context) {
	e.conn.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if err := e.Drain(ctx); err != nil {
				e.logger.Error("drain failed", slog.Any("error", err))
			}
		}()
	})
}

// Drain runs drain passes until the queue is empty, every remaining entry
// is backing off or poisoned, or the remote becomes unreachable. If a
// drain is already in flight the call is coalesced into one re-run after
// the current pass and returns immediately.
func (e *Engine) Drain(ctx context.Context) error {
	e.drainMu.Lock()
	if e.draining {
		e.rerun = true
		e.drainMu.Unlock()
		return nil
	}
	e.draining = true
	e.drainMu.Unlock()

	var err error
	for {
		err = e.drainOnce(ctx)

		e.drainMu.Lock()
		if !e.rerun {
			e.draining = false
			e.drainMu.Unlock()
			return err
		}
		e.rerun = false
		e.drainMu.Unlock()
	}
}

// drainOnce executes one pass over the queue snapshot in queue_id order.
// A failed entry never blocks replay of unrelated entries; it is retained
// for the next pass.
func (e *Engine) drainOnce(ctx context.Context) error {
	if !e.conn.IsOnline() {
		return nil
	}

	entries, err := e.store.ReadQueue()
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	// Reconciled identifiers, provisional -> canonical, seeded from the
	// store so entries whose create was applied in an earlier pass (or a
	// previous session) still resolve. Rewrites from this pass are added
	// as they happen.
	remap, err := e.store.Reconciliations()
	if err != nil {
		return fmt.Errorf("reading reconciliations: %w", err)
	}

	e.sink.SyncStarted()
	e.logger.Info("drain pass started", slog.Int("entries", len(entries)))

	applied, failed := 0, 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.deferred(entry.QueueID) {
			continue
		}

		oldID, newID, err := e.replay(ctx, entry, remap)
		if err != nil {
			failed++
			e.recordFailure(entry, oldID, err)
			continue
		}

		if err := e.store.Dequeue(entry.QueueID); err != nil {
			// Storage faults are fatal to the pass; the entry stays and
			// will be retried, never applied twice for the same queue_id
			// within this serialized engine.
			return fmt.Errorf("dequeueing %d: %w", entry.QueueID, err)
		}
		e.clearState(entry.QueueID)
		applied++
		e.sink.EntryApplied(entry.TableName, oldID, newID)
	}

	e.sink.SyncFinished(applied, failed)
	e.logger.Info("drain pass finished",
		slog.Int("applied", applied), slog.Int("failed", failed))
	return nil
}

// replay dispatches one queue entry against the remote. On success it
// returns the entry's identifier before and after reconciliation.
func (e *Engine) replay(ctx context.Context, entry types.QueueEntry, remap map[string]string) (oldID, newID string, err error) {
	snap, err := types.DecodeSnapshot(entry.Payload)
	if err != nil {
		return "", "", fmt.Errorf("malformed payload: %w", err)
	}

	oldID = snap.DisplayID
	if canonical, ok := remap[snap.DisplayID]; ok {
		snap.DisplayID = canonical
	}
	rewriteReferences(snap.Fields, remap)

	// The row is pending while its entry replays.
	if stErr := e.store.SetSyncState(entry.TableName, snap.DisplayID, types.SyncStatePending); stErr != nil && !errors.Is(stErr, types.ErrNotFound) {
		return oldID, "", fmt.Errorf("marking pending: %w", stErr)
	}

	switch entry.Action {
	case types.ActionCreate:
		payload := clonePayload(snap.Fields)
		payload["display_id"] = snap.DisplayID
		created, createErr := e.remote.Create(ctx, entry.TableName, payload)
		if createErr != nil {
			return oldID, "", createErr
		}
		newID = created.DisplayID
		if types.IsProvisional(snap.DisplayID) && newID != snap.DisplayID {
			if recErr := e.store.ReconcileDisplayID(entry.TableName, snap.DisplayID, newID); recErr != nil {
				return oldID, "", fmt.Errorf("reconciling identifier: %w", recErr)
			}
			remap[snap.DisplayID] = newID
			e.logger.Info("identifier reconciled",
				slog.String("table", entry.TableName),
				slog.String("provisional", snap.DisplayID),
				slog.String("canonical", newID))
		} else {
			newID = snap.DisplayID
			if stErr := e.store.SetSyncState(entry.TableName, newID, types.SyncStateSynced); stErr != nil && !errors.Is(stErr, types.ErrNotFound) {
				return oldID, "", fmt.Errorf("marking synced: %w", stErr)
			}
		}
		return oldID, newID, nil

	case types.ActionUpdate:
		if updErr := e.remote.Update(ctx, entry.TableName, snap.DisplayID, snap.Fields); updErr != nil {
			return oldID, "", updErr
		}
		if stErr := e.store.SetSyncState(entry.TableName, snap.DisplayID, types.SyncStateSynced); stErr != nil && !errors.Is(stErr, types.ErrNotFound) {
			return oldID, "", fmt.Errorf("marking synced: %w", stErr)
		}
		return oldID, snap.DisplayID, nil

	default:
		return oldID, "", fmt.Errorf("%w: %s", types.ErrInvalidAction, entry.Action)
	}
}

// deferred reports whether an entry should be skipped this pass because it
// is poisoned or still inside its backoff window.
func (e *Engine) deferred(queueID int64) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[queueID]
	if !ok {
		return false
	}
	return st.poisoned || e.now().Before(st.nextAttempt)
}

// recordFailure updates retry bookkeeping after a failed replay: the row
// goes back to unsynced, the entry's backoff doubles, and once attempts
// cross the threshold the entry is parked as poison and surfaced to the
// sink. Validation faults count double so an unfixable payload parks
// quickly instead of retrying until the threshold.
func (e *Engine) recordFailure(entry types.QueueEntry, displayID string, cause error) {
	if displayID != "" {
		if stErr := e.store.SetSyncState(entry.TableName, displayID, types.SyncStateUnsynced); stErr != nil && !errors.Is(stErr, types.ErrNotFound) {
			e.logger.Error("resetting sync state", slog.Any("error", stErr))
		}
	}
	e.sink.EntryFailed(entry.TableName, cause.Error())
	e.logger.Warn("entry replay failed",
		slog.Int64("queue_id", entry.QueueID),
		slog.String("table", entry.TableName),
		slog.Any("error", cause))

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	st, ok := e.states[entry.QueueID]
	if !ok {
		st = &entryState{}
		e.states[entry.QueueID] = st
	}
	st.attempts++
	if remote.IsValidation(cause) {
		st.attempts++
	}
	st.nextAttempt = e.now().Add(e.backoff(st.attempts))

	if st.attempts >= e.maxAttempts && !st.poisoned {
		st.poisoned = true
		e.sink.EntryPoisoned(entry.TableName, displayID, st.attempts)
		e.logger.Error("entry poisoned, manual intervention required",
			slog.Int64("queue_id", entry.QueueID),
			slog.String("table", entry.TableName),
			slog.String("display_id", displayID),
			slog.Int("attempts", st.attempts))
	}
}

// backoff returns the exponential backoff delay for the nth consecutive
// failure, bounded by the configured maximum.
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.backoffMin
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.backoffMax {
			return e.backoffMax
		}
	}
	if d > e.backoffMax {
		return e.backoffMax
	}
	return d
}

// clearState drops retry bookkeeping for an applied entry.
func (e *Engine) clearState(queueID int64) {
	e.stateMu.Lock()
	delete(e.states, queueID)
	e.stateMu.Unlock()
}

// PoisonedEntries returns the queue IDs currently parked as poison, in no
// particular order.
func (e *Engine) PoisonedEntries() []int64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	var ids []int64
	for id, st := range e.states {
		if st.poisoned {
			ids = append(ids, id)
		}
	}
	return ids
}

// rewriteReferences substitutes reconciled identifiers into string field
// values, so payloads referencing a provisional ID point at the canonical
// row whether the create was reconciled this pass or any earlier one.
func rewriteReferences(fields map[string]any, remap map[string]string) {
	if len(remap) == 0 {
		return
	}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			if canonical, ok := remap[s]; ok {
				fields[k] = canonical
			}
		}
	}
}

// clonePayload shallow-copies a field map so replay can add keys without
// mutating the decoded snapshot.
func clonePayload(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}
