package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchw/fieldsync/internal/remote"
	"github.com/openchw/fieldsync/internal/sqlite"
	"github.com/openchw/fieldsync/pkg/types"
)

// fakeRemote is an in-memory RemoteClient that allocates canonical
// identifiers the way the backend does (prefix plus row count) and can be
// told to fail specific identifiers.
type fakeRemote struct {
	mu          sync.Mutex
	counts      map[string]int
	creates     []map[string]any
	updates     []string // "table/id" in call order
	failIDs     map[string]error
	failUpdates map[string]error // update faults keyed by target id

	createStarted chan struct{} // signalled once when Create is entered, if non-nil
	createGate    chan struct{} // Create blocks on this until closed, if non-nil
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		counts:      make(map[string]int),
		failIDs:     make(map[string]error),
		failUpdates: make(map[string]error),
	}
}

func (f *fakeRemote) Create(_ context.Context, table string, payload map[string]any) (remote.CreatedRecord, error) {
	if f.createStarted != nil {
		select {
		case f.createStarted <- struct{}{}:
		default:
		}
	}
	if f.createGate != nil {
		<-f.createGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id, _ := payload["display_id"].(string)
	if err := f.failIDs[id]; err != nil {
		return remote.CreatedRecord{}, err
	}

	f.counts[table]++
	displayID := id
	if displayID == "" || types.IsProvisional(displayID) {
		displayID = fmt.Sprintf("%s-%03d", types.DisplayPrefixes[table], f.counts[table])
	}
	stored := make(map[string]any, len(payload))
	for k, v := range payload {
		stored[k] = v
	}
	stored["display_id"] = displayID
	f.creates = append(f.creates, stored)
	return remote.CreatedRecord{ID: int64(f.counts[table]), DisplayID: displayID}, nil
}

func (f *fakeRemote) Update(_ context.Context, table, id string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdates[id]; err != nil {
		return err
	}
	if err := f.failIDs[id]; err != nil {
		return err
	}
	f.updates = append(f.updates, table+"/"+id)
	return nil
}

func (f *fakeRemote) Count(_ context.Context, table string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[table], nil
}

func (f *fakeRemote) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

// fakeConn is a settable ConnectivitySource.
type fakeConn struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
}

func (f *fakeConn) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeConn) Subscribe(fn func(bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *fakeConn) setOnline(online bool) {
	f.mu.Lock()
	f.online = online
	subs := append([]func(bool){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

// recordingSink captures event sink notifications.
type recordingSink struct {
	mu       sync.Mutex
	started  int
	applied  [][3]string // table, old, new
	failed   [][2]string // table, reason
	poisoned [][2]string // table, id
	finished [][2]int    // applied, failed
}

func (r *recordingSink) SyncStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recordingSink) EntryApplied(table, oldID, newID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, [3]string{table, oldID, newID})
}

func (r *recordingSink) EntryFailed(table, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, [2]string{table, reason})
}

func (r *recordingSink) EntryPoisoned(table, id string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poisoned = append(r.poisoned, [2]string{table, id})
}

func (r *recordingSink) SyncFinished(applied, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, [2]int{applied, failed})
}

// testConfig returns a config whose backoff never defers within a test.
func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.DataDir = "unused"
	cfg.ServerURL = "http://unused"
	cfg.BackoffMin = time.Nanosecond
	cfg.BackoffMax = time.Microsecond
	return cfg
}

// setupEngine builds a store, fake remote, online fake connectivity, and
// an engine wired to a recording sink.
func setupEngine(t *testing.T, cfg types.Config) (*Engine, *sqlite.Store, *fakeRemote, *fakeConn, *recordingSink) {
	t.Helper()
	store := sqlite.New()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { store.Close() })

	rc := newFakeRemote()
	conn := &fakeConn{online: true}
	sink := &recordingSink{}
	e := New(store, rc, conn, sink, cfg, nil)
	return e, store, rc, conn, sink
}

// queueCreate stores an offline-captured record: domain row plus queue
// entry, the way the write path does it.
func queueCreate(t *testing.T, store *sqlite.Store, table, displayID string, fields map[string]any) int64 {
	t.Helper()
	payload, err := types.EncodeSnapshot(types.Snapshot{DisplayID: displayID, Fields: fields})
	require.NoError(t, err)
	rec := &types.Record{DisplayID: displayID, Fields: fields, SyncState: types.SyncStateUnsynced}
	_, queueID, err := store.InsertWithQueue(table, rec, types.ActionCreate, payload)
	require.NoError(t, err)
	return queueID
}

func TestDrainReconcilesProvisionalIdentifier(t *testing.T) {
	e, store, rc, _, sink := setupEngine(t, testConfig())
	rc.counts[types.TablePatients] = 2 // two rows already on the remote

	queueCreate(t, store, types.TablePatients, "TEMP-abc123", map[string]any{"name": "Jane Doe"})

	require.NoError(t, e.Drain(context.Background()))

	require.Equal(t, 1, rc.createCount(), "remote create must be called exactly once")

	got, err := store.GetRecordByDisplayID(types.TablePatients, "P-003")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStateSynced, got.SyncState)
	assert.Equal(t, "Jane Doe", got.Fields["name"])

	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, sink.applied, 1)
	assert.Equal(t, [3]string{types.TablePatients, "TEMP-abc123", "P-003"}, sink.applied[0])
	assert.Equal(t, [][2]int{{1, 0}}, sink.finished)
}

func TestDrainReplaysInQueueOrder(t *testing.T) {
	e, store, rc, _, _ := setupEngine(t, testConfig())

	for _, name := range []string{"first", "second", "third"} {
		queueCreate(t, store, types.TablePatients, "TEMP-"+name, map[string]any{"name": name})
	}

	require.NoError(t, e.Drain(context.Background()))

	require.Equal(t, 3, rc.createCount())
	assert.Equal(t, "first", rc.creates[0]["name"])
	assert.Equal(t, "second", rc.creates[1]["name"])
	assert.Equal(t, "third", rc.creates[2]["name"])
}

func TestDrainDoesNothingOffline(t *testing.T) {
	e, store, rc, conn, sink := setupEngine(t, testConfig())
	conn.online = false

	queueCreate(t, store, types.TablePatients, "TEMP-a", map[string]any{"name": "a"})

	require.NoError(t, e.Drain(context.Background()))

	assert.Zero(t, rc.createCount())
	assert.Zero(t, sink.started)
	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPartialFailureIsolation(t *testing.T) {
	e, store, rc, _, sink := setupEngine(t, testConfig())

	queueCreate(t, store, types.TablePatients, "TEMP-bad", map[string]any{"name": "A"})
	queueCreate(t, store, types.TablePatients, "TEMP-good", map[string]any{"name": "B"})
	rc.failIDs["TEMP-bad"] = fmt.Errorf("connection reset")

	require.NoError(t, e.Drain(context.Background()))

	// B was applied and removed; A remains queued and unsynced.
	entries, err := store.ReadQueue()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snap, err := types.DecodeSnapshot(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "TEMP-bad", snap.DisplayID)

	bad, err := store.GetRecordByDisplayID(types.TablePatients, "TEMP-bad")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStateUnsynced, bad.SyncState)

	good, err := store.GetRecordByDisplayID(types.TablePatients, "P-001")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStateSynced, good.SyncState)

	require.Len(t, sink.failed, 1)
	assert.Equal(t, [][2]int{{1, 1}}, sink.finished)
}

func TestRetryAfterFailureDoesNotDuplicate(t *testing.T) {
	e, store, rc, _, _ := setupEngine(t, testConfig())

	queueCreate(t, store, types.TablePatients, "TEMP-a", map[string]any{"name": "a"})
	rc.failIDs["TEMP-a"] = fmt.Errorf("timeout")

	require.NoError(t, e.Drain(context.Background()))
	assert.Zero(t, rc.createCount())

	// The fault clears; the next pass applies the entry exactly once.
	delete(rc.failIDs, "TEMP-a")
	require.NoError(t, e.Drain(context.Background()))
	assert.Equal(t, 1, rc.createCount())

	require.NoError(t, e.Drain(context.Background()))
	assert.Equal(t, 1, rc.createCount(), "an applied entry must never replay again")
}

func TestConcurrentDrainsCoalesce(t *testing.T) {
	e, store, rc, _, _ := setupEngine(t, testConfig())

	queueCreate(t, store, types.TablePatients, "TEMP-a", map[string]any{"name": "a"})
	rc.createStarted = make(chan struct{}, 1)
	rc.createGate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- e.Drain(context.Background()) }()

	// Wait until the first drain is inside the remote call, then trigger
	// two more drains; both must coalesce instead of replaying the same
	// create concurrently.
	<-rc.createStarted
	require.NoError(t, e.Drain(context.Background()))
	require.NoError(t, e.Drain(context.Background()))

	close(rc.createGate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, rc.createCount(), "a non-idempotent create must be submitted exactly once")
	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBackoffDefersRetry(t *testing.T) {
	cfg := testConfig()
	cfg.BackoffMin = time.Hour
	cfg.BackoffMax = 2 * time.Hour
	e, store, rc, _, _ := setupEngine(t, cfg)

	queueCreate(t, store, types.TablePatients, "TEMP-a", map[string]any{"name": "a"})
	rc.failIDs["TEMP-a"] = fmt.Errorf("timeout")

	require.NoError(t, e.Drain(context.Background()))
	delete(rc.failIDs, "TEMP-a")

	// Inside the backoff window the entry is skipped.
	require.NoError(t, e.Drain(context.Background()))
	assert.Zero(t, rc.createCount())

	// Once the window has passed the entry replays.
	e.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	require.NoError(t, e.Drain(context.Background()))
	assert.Equal(t, 1, rc.createCount())
}

func TestValidationFaultPoisonsEntry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	e, store, rc, _, sink := setupEngine(t, cfg)

	queueID := queueCreate(t, store, types.TablePatients, "TEMP-bad", map[string]any{"name": ""})
	rc.failIDs["TEMP-bad"] = &remote.APIError{Status: 400, Message: "name is required"}

	// Validation faults count double, so one failure crosses MaxAttempts=2.
	require.NoError(t, e.Drain(context.Background()))

	require.Len(t, sink.poisoned, 1)
	assert.Equal(t, [2]string{types.TablePatients, "TEMP-bad"}, sink.poisoned[0])
	assert.Equal(t, []int64{queueID}, e.PoisonedEntries())

	// The entry stays in the queue but is skipped on later passes.
	delete(rc.failIDs, "TEMP-bad")
	require.NoError(t, e.Drain(context.Background()))
	assert.Zero(t, rc.createCount())

	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a poisoned entry is parked, never dropped")
}

func TestUpdateQueuedAfterCreateTargetsCanonicalID(t *testing.T) {
	e, store, rc, _, _ := setupEngine(t, testConfig())
	rc.counts[types.TablePatients] = 2

	queueCreate(t, store, types.TablePatients, "TEMP-x", map[string]any{"name": "Jane"})

	rec, err := store.GetRecordByDisplayID(types.TablePatients, "TEMP-x")
	require.NoError(t, err)
	fields := map[string]any{"name": "Jane Doe"}
	payload, err := types.EncodeSnapshot(types.Snapshot{DisplayID: "TEMP-x", Fields: fields})
	require.NoError(t, err)
	_, err = store.UpdateWithQueue(types.TablePatients, rec.LocalKey, fields, payload)
	require.NoError(t, err)

	require.NoError(t, e.Drain(context.Background()))

	// The create reconciled TEMP-x to P-003 earlier in the same pass, so
	// the update must have targeted the canonical identifier.
	require.Equal(t, []string{types.TablePatients + "/P-003"}, rc.updates)

	got, err := store.GetRecordByDisplayID(types.TablePatients, "P-003")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStateSynced, got.SyncState)

	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateResolvesCanonicalIDFromEarlierPass(t *testing.T) {
	// A transient create fault on the first pass splits the create and its
	// queued update across passes: the update 404s against the provisional
	// identifier and picks up a longer backoff than the create. The create
	// then reconciles alone on the second pass, and the update must still
	// converge on the canonical identifier on the third.
	cfg := testConfig()
	cfg.BackoffMin = time.Hour
	cfg.BackoffMax = 100 * time.Hour
	e, store, rc, _, sink := setupEngine(t, cfg)

	queueCreate(t, store, types.TablePatients, "TEMP-x", map[string]any{"name": "Jane"})

	rec, err := store.GetRecordByDisplayID(types.TablePatients, "TEMP-x")
	require.NoError(t, err)
	fields := map[string]any{"name": "Jane Doe"}
	payload, err := types.EncodeSnapshot(types.Snapshot{DisplayID: "TEMP-x", Fields: fields})
	require.NoError(t, err)
	_, err = store.UpdateWithQueue(types.TablePatients, rec.LocalKey, fields, payload)
	require.NoError(t, err)

	rc.failIDs["TEMP-x"] = fmt.Errorf("timeout")
	rc.failUpdates["TEMP-x"] = &remote.APIError{Status: 404, Message: "no row TEMP-x"}

	base := time.Now()
	require.NoError(t, e.Drain(context.Background()))
	require.Len(t, sink.failed, 2)

	// The fault clears. Only the create is past its backoff window here;
	// the 404 counted double, so the update stays deferred.
	delete(rc.failIDs, "TEMP-x")
	e.now = func() time.Time { return base.Add(90 * time.Minute) }
	require.NoError(t, e.Drain(context.Background()))
	require.Equal(t, 1, rc.createCount())
	assert.Empty(t, rc.updates)

	e.now = func() time.Time { return base.Add(4 * time.Hour) }
	require.NoError(t, e.Drain(context.Background()))

	// The update targeted the identifier reconciled a pass earlier, not
	// the stale provisional one.
	require.Equal(t, []string{types.TablePatients + "/P-001"}, rc.updates)
	assert.Empty(t, e.PoisonedEntries())

	n, err := store.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.GetRecordByDisplayID(types.TablePatients, "P-001")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStateSynced, got.SyncState)
}

func TestCrossRecordReferenceRewrittenDuringPass(t *testing.T) {
	e, store, rc, _, _ := setupEngine(t, testConfig())

	queueCreate(t, store, types.TablePatients, "TEMP-pat", map[string]any{"name": "Jane"})
	queueCreate(t, store, types.TableAppointments, "TEMP-appt", map[string]any{
		"patient_id": "TEMP-pat",
		"date":       "2026-09-14",
	})

	require.NoError(t, e.Drain(context.Background()))

	require.Equal(t, 2, rc.createCount())
	appt := rc.creates[1]
	assert.Equal(t, "P-001", appt["patient_id"],
		"reference to a provisional identifier reconciled earlier in the pass must be rewritten")
}

func TestOnlineTransitionTriggersDrain(t *testing.T) {
	e, store, rc, conn, _ := setupEngine(t, testConfig())
	conn.online = false

	queueCreate(t, store, types.TablePatients, "TEMP-a", map[string]any{"name": "a"})

	e.Start(context.Background())
	conn.setOnline(true)
	// A duplicate Online notification is tolerated.
	conn.setOnline(true)

	require.Eventually(t, func() bool {
		n, err := store.QueueLength()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, rc.createCount())
}

func TestMalformedPayloadFailsWithoutBlockingOthers(t *testing.T) {
	e, store, rc, _, sink := setupEngine(t, testConfig())

	_, err := store.Enqueue(types.ActionCreate, types.TablePatients, []byte(`{"display_id"`))
	require.NoError(t, err)
	queueCreate(t, store, types.TablePatients, "TEMP-ok", map[string]any{"name": "fine"})

	require.NoError(t, e.Drain(context.Background()))

	assert.Equal(t, 1, rc.createCount())
	require.Len(t, sink.failed, 1)
	assert.Contains(t, sink.failed[0][1], "malformed payload")
}
