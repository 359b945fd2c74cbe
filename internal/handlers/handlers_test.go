package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedsync/internal/handlers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealth_AllChecksPass(t *testing.T) {
	t.Parallel()
	h := &handlers.Handlers{
		Service: "feedsync",
		Checks: map[string]handlers.Checker{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		},
	}

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "feedsync", body["service"])
	assert.Equal(t, map[string]any{"database": "ok", "redis": "ok"}, body["checks"])
}

func TestHealth_FailingCheckDegrades(t *testing.T) {
	t.Parallel()
	h := &handlers.Handlers{
		Service: "feedsync",
		Checks: map[string]handlers.Checker{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	}

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
}

func TestHealth_NoChecks(t *testing.T) {
	t.Parallel()
	h := &handlers.Handlers{Service: "feedsync"}

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	_, hasChecks := decode(t, rr)["checks"]
	assert.False(t, hasChecks)
}

func TestPing(t *testing.T) {
	t.Parallel()
	h := &handlers.Handlers{}

	rr := httptest.NewRecorder()
	h.Ping(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rr.Body.String())
}
