// Package sqlite implements the on-device store for fieldsync: the domain
// tables and the durable sync queue, backed by a single SQLite database.
package sqlite

// Schema DDL. Every domain table carries the same sync columns; the
// sync_queue table is the write-ahead log drained by the sync engine, and
// reconciliations records every provisional-to-canonical identifier
// rewrite so queued writes from earlier sessions still resolve.
const (
	createPatients = `CREATE TABLE IF NOT EXISTS patients (
    local_key INTEGER PRIMARY KEY AUTOINCREMENT,
    display_id TEXT NOT NULL UNIQUE,
    fields TEXT NOT NULL,
    sync_state TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createChildren = `CREATE TABLE IF NOT EXISTS children (
    local_key INTEGER PRIMARY KEY AUTOINCREMENT,
    display_id TEXT NOT NULL UNIQUE,
    fields TEXT NOT NULL,
    sync_state TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createAppointments = `CREATE TABLE IF NOT EXISTS appointments (
    local_key INTEGER PRIMARY KEY AUTOINCREMENT,
    display_id TEXT NOT NULL UNIQUE,
    fields TEXT NOT NULL,
    sync_state TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createSyncQueue = `CREATE TABLE IF NOT EXISTS sync_queue (
    queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    table_name TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createReconciliations = `CREATE TABLE IF NOT EXISTS reconciliations (
    provisional_id TEXT PRIMARY KEY,
    canonical_id TEXT NOT NULL,
    table_name TEXT NOT NULL,
    created_at TEXT NOT NULL
);`
)

// schemaStatements lists all DDL applied on Open, in order.
var schemaStatements = []string{
	createPatients,
	createChildren,
	createAppointments,
	createSyncQueue,
	createReconciliations,
}
