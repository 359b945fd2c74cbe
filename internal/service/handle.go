package service

import (
	"context"
	"sync"

	"feedsync/internal/docstore"
	"feedsync/internal/observability"
)

// Handle owns the live registrations behind one subscription: a primary
// listener and at most one nested child listener that depends on it.
// Dispose tears both down, including a child whose establishment was still
// in flight when Dispose ran.
type Handle struct {
	kind   string
	cancel context.CancelFunc

	mu        sync.Mutex
	disposed  bool
	primary   docstore.Registration
	child     docstore.Registration
	childKey  string
	childGen  uint64
	childBusy bool

	// deliverMu serializes callbacks from the primary and child listeners.
	deliverMu sync.Mutex
}

func newHandle(ctx context.Context, kind string) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	observability.LiveSubscriptions.WithLabelValues(kind).Inc()
	return &Handle{kind: kind, cancel: cancel}, ctx
}

// Dispose stops every registration held by the handle. After it returns no
// new callback reaches the subscriber; one already running may finish.
// Calling it again does nothing. It is safe to call from inside a callback.
func (h *Handle) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	primary, child := h.primary, h.child
	h.primary, h.child = nil, nil
	h.childKey = ""
	h.childGen++
	h.mu.Unlock()

	if child != nil {
		child.Stop()
	}
	if primary != nil {
		primary.Stop()
	}
	h.cancel()
	observability.LiveSubscriptions.WithLabelValues(h.kind).Dec()
}

// Disposed reports whether Dispose has been called.
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

func (h *Handle) setPrimary(reg docstore.Registration) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		reg.Stop()
		return
	}
	h.primary = reg
	h.mu.Unlock()
}

// ensureChild makes sure a child listener keyed by key is running,
// replacing any child with a different key. establish runs without the
// handle lock held and receives the generation its deliveries belong to.
// A registration that comes back after Dispose, or after the child was
// replaced meanwhile, is stopped on the spot.
func (h *Handle) ensureChild(key string, establish func(gen uint64) docstore.Registration) {
	h.mu.Lock()
	if h.disposed || (h.childKey == key && (h.child != nil || h.childBusy)) {
		h.mu.Unlock()
		return
	}
	old := h.child
	h.child = nil
	h.childKey = key
	h.childGen++
	h.childBusy = true
	gen := h.childGen
	h.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	reg := establish(gen)

	h.mu.Lock()
	if h.disposed || h.childGen != gen {
		h.mu.Unlock()
		reg.Stop()
		return
	}
	h.child = reg
	h.childBusy = false
	h.mu.Unlock()
}

// clearChild stops the current child listener, if any.
func (h *Handle) clearChild() {
	h.mu.Lock()
	child := h.child
	h.child = nil
	h.childKey = ""
	h.childBusy = false
	h.childGen++
	h.mu.Unlock()

	if child != nil {
		child.Stop()
	}
}

func (h *Handle) childCurrent(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disposed && h.childGen == gen
}

// deliver runs call unless the handle has been disposed.
func (h *Handle) deliver(call func()) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.Disposed() {
		return
	}
	observability.SnapshotDeliveries.WithLabelValues(h.kind).Inc()
	call()
}

// deliverChild runs call only while gen is still the live child generation.
func (h *Handle) deliverChild(gen uint64, call func()) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if !h.childCurrent(gen) {
		return
	}
	observability.SnapshotDeliveries.WithLabelValues(h.kind).Inc()
	call()
}
