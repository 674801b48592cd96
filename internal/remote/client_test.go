package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, nil)
}

func TestCreateDecodesCanonicalIdentifiers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/patients", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Jane Doe", payload["name"])

		writeJSON(w, http.StatusCreated, CreatedRecord{ID: 7, DisplayID: "P-003"})
	})

	created, err := c.Create(context.Background(), "patients", map[string]any{"name": "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, "P-003", created.DisplayID)
}

func TestUpdateTargetsIdentifier(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/patients/P-003", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	})

	err := c.Update(context.Background(), "patients", "P-003", map[string]any{"name": "Jane"})
	require.NoError(t, err)
}

func TestCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients/count", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]int{"count": 2})
	})

	n, err := c.Count(context.Background(), "patients")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRejectionIsValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, "name is required")
	})

	_, err := c.Create(context.Background(), "patients", map[string]any{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "name is required")
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "database down")
	})

	_, err := c.Count(context.Background(), "patients")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsValidation(err))
}

func TestUnreachableHostIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, 500*time.Millisecond, nil)
	_, err := c.Count(context.Background(), "patients")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsValidation(err))
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	assert.True(t, c.Ping(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "maintenance")
	})
	assert.False(t, down.Ping(context.Background()))
}
