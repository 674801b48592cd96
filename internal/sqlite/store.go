package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/openchw/fieldsync/pkg/types"
)

// dbFileName is the SQLite database file created under the data directory.
const dbFileName = "fieldsync.db"

// Store is the durable on-device store. It owns the domain tables and the
// sync queue, and serializes conflicting writers through SQLite itself.
// Writers append queue entries, the drain worker reads then deletes them;
// the two never touch the same rows outside a transaction.
type Store struct {
	mu      sync.RWMutex
	open    bool
	dataDir string
	db      *sql.DB

	// writeMu serializes multi-statement write transactions so a UI write
	// and a drain-pass reconciliation never interleave partial state.
	writeMu sync.Mutex
}

// New returns an unopened Store. Call Open with a data directory before use.
func New() *Store {
	return &Store{}
}

// Open creates the data directory if needed, opens the database, enables
// WAL mode, and applies the schema. Returns ErrAlreadyOpen if called twice.
func (s *Store) Open(dataDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return types.ErrAlreadyOpen
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return fmt.Errorf("enabling WAL mode: %w", err)
	}
	for _, ddl := range schemaStatements {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	s.db = db
	s.dataDir = dataDir
	s.open = true
	return nil
}

// Close releases the database connection. Idempotent; after Close all
// operations return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	s.open = false
	return nil
}

// handle returns the open database or ErrStoreClosed.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, types.ErrStoreClosed
	}
	return s.db, nil
}

// checkTable validates a domain table name before it is interpolated into
// SQL. Only registered table names ever reach a query string.
func checkTable(table string) error {
	if !types.KnownTable(table) {
		return fmt.Errorf("%w: %s", types.ErrTableUnknown, table)
	}
	return nil
}
