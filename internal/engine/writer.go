package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openchw/fieldsync/internal/allocator"
	"github.com/openchw/fieldsync/internal/remote"
	"github.com/openchw/fieldsync/internal/sqlite"
	"github.com/openchw/fieldsync/pkg/types"
)

// Writer is the UI-facing write path. Online writes go straight to the
// remote and the local store; offline writes get a provisional identifier
// and land in the local store plus the sync queue, inside one transaction.
type Writer struct {
	store  *sqlite.Store
	remote RemoteClient
	alloc  *allocator.Allocator
	conn   ConnectivitySource
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(store *sqlite.Store, rc RemoteClient, alloc *allocator.Allocator, conn ConnectivitySource, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:  store,
		remote: rc,
		alloc:  alloc,
		conn:   conn,
		logger: logger.With(slog.String("component", "writer")),
	}
}

// CreateRecord stores a new domain record. When online the write goes
// directly to the remote and the local row is stored synced; no queue
// entry is made for a write that succeeded remotely. When offline, or when
// the direct write fails with a transient fault, the record gets a
// provisional identifier and an entry in the sync queue.
func (w *Writer) CreateRecord(ctx context.Context, table string, fields map[string]any) (*types.Record, error) {
	if !types.KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", types.ErrTableUnknown, table)
	}
	if len(fields) == 0 {
		return nil, types.ErrInvalidFields
	}

	online := w.conn.IsOnline()
	displayID, err := w.alloc.Allocate(ctx, table, online)
	if err != nil {
		return nil, fmt.Errorf("allocating identifier: %w", err)
	}

	if online && !types.IsProvisional(displayID) {
		rec, directErr := w.createDirect(ctx, table, displayID, fields)
		if directErr == nil {
			return rec, nil
		}
		if remote.IsValidation(directErr) {
			return nil, directErr
		}
		// Transient fault mid-write: fall back to the offline path with a
		// provisional identifier so the record is not lost.
		w.logger.Warn("direct create failed, queueing offline",
			slog.String("table", table), slog.Any("error", directErr))
		displayID = allocator.Provisional()
	}

	return w.createQueued(table, displayID, fields)
}

// createDirect performs the online create: remote first, then the local
// row with the canonical identifier and state synced.
func (w *Writer) createDirect(ctx context.Context, table, displayID string, fields map[string]any) (*types.Record, error) {
	payload := clonePayload(fields)
	payload["display_id"] = displayID

	created, err := w.remote.Create(ctx, table, payload)
	if err != nil {
		return nil, err
	}
	if created.DisplayID != "" {
		displayID = created.DisplayID
	}

	rec := &types.Record{
		DisplayID: displayID,
		Fields:    fields,
		SyncState: types.SyncStateSynced,
	}
	if _, err := w.store.InsertRecord(table, rec); err != nil {
		return nil, fmt.Errorf("storing record locally: %w", err)
	}
	return rec, nil
}

// createQueued performs the offline create: domain row plus queue entry in
// one transaction, so a crash between the two can never leave one without
// the other.
func (w *Writer) createQueued(table, displayID string, fields map[string]any) (*types.Record, error) {
	rec := &types.Record{
		DisplayID: displayID,
		Fields:    fields,
		SyncState: types.SyncStateUnsynced,
	}
	payload, err := types.EncodeSnapshot(types.Snapshot{DisplayID: displayID, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	_, queueID, err := w.store.InsertWithQueue(table, rec, types.ActionCreate, payload)
	if err != nil {
		return nil, err
	}
	w.logger.Info("record queued for sync",
		slog.String("table", table),
		slog.String("display_id", displayID),
		slog.Int64("queue_id", queueID))
	return rec, nil
}

// UpdateRecord modifies an existing record identified by its display ID.
// Online updates go to the remote then the local row; offline updates
// snapshot the full field set into the queue.
func (w *Writer) UpdateRecord(ctx context.Context, table, displayID string, fields map[string]any) error {
	if !types.KnownTable(table) {
		return fmt.Errorf("%w: %s", types.ErrTableUnknown, table)
	}
	if len(fields) == 0 {
		return types.ErrInvalidFields
	}

	rec, err := w.store.GetRecordByDisplayID(table, displayID)
	if err != nil {
		return err
	}

	// An update to a row whose create is still queued must itself be
	// queued, whatever connectivity says: replaying it before the create
	// would target a row the remote has never seen.
	if w.conn.IsOnline() && rec.SyncState == types.SyncStateSynced {
		if err := w.remote.Update(ctx, table, displayID, fields); err == nil {
			return w.store.UpdateRecord(table, rec.LocalKey, fields)
		} else if remote.IsValidation(err) {
			return err
		} else {
			w.logger.Warn("direct update failed, queueing offline",
				slog.String("table", table), slog.Any("error", err))
		}
	}

	payload, err := types.EncodeSnapshot(types.Snapshot{DisplayID: displayID, Fields: fields})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	queueID, err := w.store.UpdateWithQueue(table, rec.LocalKey, fields, payload)
	if err != nil {
		return err
	}
	w.logger.Info("update queued for sync",
		slog.String("table", table),
		slog.String("display_id", displayID),
		slog.Int64("queue_id", queueID))
	return nil
}
