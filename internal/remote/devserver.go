package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openchw/fieldsync/pkg/types"
)

// DevServer is an in-memory stand-in for the backend CRUD API, used for
// local development and end-to-end tests. It assigns canonical display
// identifiers the same way the real backend does: prefix plus a
// zero-padded row count.
type DevServer struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	nextID int64
}

// NewDevServer creates a DevServer with one empty collection per
// registered domain table.
func NewDevServer() *DevServer {
	tables := make(map[string][]map[string]any, len(types.DisplayPrefixes))
	for name := range types.DisplayPrefixes {
		tables[name] = []map[string]any{}
	}
	return &DevServer{tables: tables}
}

// Handler returns the chi router serving the CRUD API.
func (ds *DevServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1/{table}", func(r chi.Router) {
		r.Get("/count", ds.handleCount)
		r.Post("/", ds.handleCreate)
		r.Put("/{id}", ds.handleUpdate)
	})
	return r
}

func (ds *DevServer) handleCount(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	ds.mu.Lock()
	rows, ok := ds.tables[table]
	n := len(rows)
	ds.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown table "+table)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (ds *DevServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty or malformed payload")
		return
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	rows, ok := ds.tables[table]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown table "+table)
		return
	}

	ds.nextID++
	// A provisional or missing display_id means the client could not reach
	// the allocator when the record was captured; assign the canonical one
	// here. A canonical display_id supplied by an online client is kept.
	displayID, _ := payload["display_id"].(string)
	if displayID == "" || types.IsProvisional(displayID) {
		displayID = fmt.Sprintf("%s-%03d", types.DisplayPrefixes[table], len(rows)+1)
	}
	payload["display_id"] = displayID
	ds.tables[table] = append(rows, payload)

	writeJSON(w, http.StatusCreated, CreatedRecord{ID: ds.nextID, DisplayID: displayID})
}

func (ds *DevServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty or malformed payload")
		return
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	rows, ok := ds.tables[table]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown table "+table)
		return
	}
	for i, row := range rows {
		if row["display_id"] == id {
			payload["display_id"] = id
			rows[i] = payload
			writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no row "+id+" in "+table)
}

// Rows returns a copy of the stored rows for a table. Test helper.
func (ds *DevServer) Rows(table string) []map[string]any {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	rows := ds.tables[table]
	out := make([]map[string]any, len(rows))
	copy(out, rows)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
