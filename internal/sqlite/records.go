// Domain record access. Every domain table shares the same column layout,
// so one set of accessors serves patients, children, and appointments.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openchw/fieldsync/pkg/types"
)

// InsertRecord inserts a domain row and returns its local key. The record's
// CreatedAt/UpdatedAt are set to now if zero.
func (s *Store) InsertRecord(table string, rec *types.Record) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if err := validateRecord(rec); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stampRecord(rec)
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidFields, err)
	}

	res, err := db.Exec(
		`INSERT INTO `+table+` (display_id, fields, sync_state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		rec.DisplayID, string(fieldsJSON), rec.SyncState,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading local key: %w", err)
	}
	rec.LocalKey = key
	return key, nil
}

// UpdateRecord replaces the fields of an existing row and bumps updated_at.
// The display_id and sync_state columns are untouched; use SetSyncState or
// ReconcileDisplayID for those.
func (s *Store) UpdateRecord(table string, localKey int64, fields map[string]any) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := checkTable(table); err != nil {
		return err
	}
	if localKey <= 0 {
		return types.ErrInvalidKey
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidFields, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := db.Exec(
		`UPDATE `+table+` SET fields = ?, updated_at = ? WHERE local_key = ?`,
		string(fieldsJSON), time.Now().UTC().Format(time.RFC3339), localKey,
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", table, err)
	}
	return affectedOrNotFound(res)
}

// GetRecord retrieves a row by local key.
func (s *Store) GetRecord(table string, localKey int64) (*types.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	row := db.QueryRow(
		`SELECT local_key, display_id, fields, sync_state, created_at, updated_at FROM `+table+` WHERE local_key = ?`,
		localKey,
	)
	return hydrateRecord(row.Scan)
}

// GetRecordByDisplayID retrieves a row by its display identifier, which is
// unique within a table at all times.
func (s *Store) GetRecordByDisplayID(table, displayID string) (*types.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if displayID == "" {
		return nil, types.ErrInvalidKey
	}
	row := db.QueryRow(
		`SELECT local_key, display_id, fields, sync_state, created_at, updated_at FROM `+table+` WHERE display_id = ?`,
		displayID,
	)
	return hydrateRecord(row.Scan)
}

// ListRecords returns all rows of a table ordered by local_key ascending.
func (s *Store) ListRecords(table string) ([]*types.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT local_key, display_id, fields, sync_state, created_at, updated_at FROM ` + table + ` ORDER BY local_key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	records := []*types.Record{}
	for rows.Next() {
		rec, err := hydrateRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}
	return records, nil
}

// SetSyncState updates the sync_state column of the row with the given
// display identifier.
func (s *Store) SetSyncState(table, displayID, state string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := checkTable(table); err != nil {
		return err
	}
	if !types.ValidSyncState(state) {
		return fmt.Errorf("invalid sync state %q", state)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := db.Exec(
		`UPDATE `+table+` SET sync_state = ?, updated_at = ? WHERE display_id = ?`,
		state, time.Now().UTC().Format(time.RFC3339), displayID,
	)
	if err != nil {
		return fmt.Errorf("setting sync state on %s: %w", table, err)
	}
	return affectedOrNotFound(res)
}

// ReconcileDisplayID rewrites a provisional display identifier to its
// canonical form and marks the row synced, recording the rewrite in the
// reconciliations table inside the same transaction. The mapping is what
// lets queue entries captured against the provisional identifier replay
// correctly in any later pass, including after a restart.
func (s *Store) ReconcileDisplayID(table, provisionalID, canonicalID string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := checkTable(table); err != nil {
		return err
	}
	if provisionalID == "" || canonicalID == "" {
		return types.ErrInvalidKey
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE `+table+` SET display_id = ?, sync_state = ?, updated_at = ? WHERE display_id = ?`,
		canonicalID, types.SyncStateSynced, time.Now().UTC().Format(time.RFC3339), provisionalID,
	)
	if err != nil {
		return fmt.Errorf("reconciling %s on %s: %w", provisionalID, table, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO reconciliations (provisional_id, canonical_id, table_name, created_at) VALUES (?, ?, ?, ?)`,
		provisionalID, canonicalID, table, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording reconciliation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reconciliation: %w", err)
	}
	return nil
}

// Reconciliations returns every recorded provisional-to-canonical
// identifier rewrite.
func (s *Store) Reconciliations() (map[string]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT provisional_id, canonical_id FROM reconciliations`)
	if err != nil {
		return nil, fmt.Errorf("reading reconciliations: %w", err)
	}
	defer rows.Close()

	remap := make(map[string]string)
	for rows.Next() {
		var provisional, canonical string
		if err := rows.Scan(&provisional, &canonical); err != nil {
			return nil, fmt.Errorf("scanning reconciliation: %w", err)
		}
		remap[provisional] = canonical
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reconciliations: %w", err)
	}
	return remap, nil
}

// CountRecords returns the number of rows in a domain table.
func (s *Store) CountRecords(table string) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// validateRecord checks the invariants a row must satisfy before insert.
func validateRecord(rec *types.Record) error {
	if rec == nil || len(rec.Fields) == 0 {
		return types.ErrInvalidFields
	}
	if rec.DisplayID == "" {
		return types.ErrInvalidKey
	}
	if !types.ValidSyncState(rec.SyncState) {
		return fmt.Errorf("invalid sync state %q", rec.SyncState)
	}
	return nil
}

// stampRecord fills zero timestamps with the current time.
func stampRecord(rec *types.Record) {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
}

// hydrateRecord converts one row into a *types.Record. scan is either
// (*sql.Row).Scan or (*sql.Rows).Scan.
func hydrateRecord(scan func(...any) error) (*types.Record, error) {
	var rec types.Record
	var fieldsJSON, createdAt, updatedAt string
	if err := scan(&rec.LocalKey, &rec.DisplayID, &fieldsJSON, &rec.SyncState, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	var err error
	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// affectedOrNotFound maps zero affected rows to ErrNotFound.
func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
