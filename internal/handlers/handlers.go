// Package handlers serves the operational endpoints of feedsync processes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"feedsync/internal/observability"
)

// Checker reports whether one dependency is reachable.
type Checker func(ctx context.Context) error

// Handlers answers /health and /ping.
type Handlers struct {
	Service string
	Checks  map[string]Checker
	Timeout time.Duration
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

var pingResponse = []byte(`{"message": "pong"}`)

// Health runs every check and answers 503 when any of them fails.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Service: h.Service}
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			observability.Logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, code, resp)
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(pingResponse); err != nil {
		observability.Logger.WarnContext(r.Context(), "write error", "error", err)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.Logger.WarnContext(ctx, "write error", "error", err)
	}
}
