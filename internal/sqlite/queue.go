// Sync queue access. The queue is the write-ahead log of pending writes:
// rows are appended by the write path, read in queue_id order by the drain
// worker, and deleted after a successful replay. Rows are never updated.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openchw/fieldsync/pkg/types"
)

// Enqueue appends one queue entry and returns its queue_id.
func (s *Store) Enqueue(action, table string, payload json.RawMessage) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if !types.ValidAction(action) {
		return 0, fmt.Errorf("%w: %s", types.ErrInvalidAction, action)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := db.Exec(
		`INSERT INTO sync_queue (action, table_name, payload, created_at) VALUES (?, ?, ?, ?)`,
		action, table, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading queue id: %w", err)
	}
	return id, nil
}

// Dequeue deletes exactly one queue entry. Deleting an entry that was
// already removed is a no-op, so retried drains tolerate each other.
func (s *Store) Dequeue(queueID int64) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := db.Exec(`DELETE FROM sync_queue WHERE queue_id = ?`, queueID); err != nil {
		return fmt.Errorf("dequeueing %d: %w", queueID, err)
	}
	return nil
}

// ReadQueue returns all pending entries sorted ascending by queue_id.
// Re-querying mid-drain reflects concurrent dequeues.
func (s *Store) ReadQueue() ([]types.QueueEntry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT queue_id, action, table_name, payload, created_at FROM sync_queue ORDER BY queue_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	defer rows.Close()

	entries := []types.QueueEntry{}
	for rows.Next() {
		var e types.QueueEntry
		var payload, createdAt string
		if err := rows.Scan(&e.QueueID, &e.Action, &e.TableName, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing queue created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue: %w", err)
	}
	return entries, nil
}

// QueueLength returns the number of pending queue entries.
func (s *Store) QueueLength() (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue: %w", err)
	}
	return n, nil
}

// InsertWithQueue inserts a domain row and appends its queue entry in one
// transaction. The commit is the single durability point: a crash between
// the two statements can never leave an orphaned queue entry or an
// un-queued write.
func (s *Store) InsertWithQueue(table string, rec *types.Record, action string, payload json.RawMessage) (int64, int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, 0, err
	}
	if err := validateRecord(rec); err != nil {
		return 0, 0, err
	}
	if !types.ValidAction(action) {
		return 0, 0, fmt.Errorf("%w: %s", types.ErrInvalidAction, action)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stampRecord(rec)
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", types.ErrInvalidFields, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO `+table+` (display_id, fields, sync_state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		rec.DisplayID, string(fieldsJSON), rec.SyncState,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	localKey, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("reading local key: %w", err)
	}

	queueID, err := enqueueTx(tx, action, table, payload)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing write: %w", err)
	}
	rec.LocalKey = localKey
	return localKey, queueID, nil
}

// UpdateWithQueue updates a domain row and appends its queue entry in one
// transaction, with the same all-or-nothing guarantee as InsertWithQueue.
func (s *Store) UpdateWithQueue(table string, localKey int64, fields map[string]any, payload json.RawMessage) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if localKey <= 0 {
		return 0, types.ErrInvalidKey
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidFields, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE `+table+` SET fields = ?, sync_state = ?, updated_at = ? WHERE local_key = ?`,
		string(fieldsJSON), types.SyncStateUnsynced,
		time.Now().UTC().Format(time.RFC3339), localKey,
	)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", table, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return 0, err
	}

	queueID, err := enqueueTx(tx, types.ActionUpdate, table, payload)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing write: %w", err)
	}
	return queueID, nil
}

// enqueueTx appends a queue entry inside an open transaction.
func enqueueTx(tx *sql.Tx, action, table string, payload json.RawMessage) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO sync_queue (action, table_name, payload, created_at) VALUES (?, ?, ?, ?)`,
		action, table, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading queue id: %w", err)
	}
	return id, nil
}
