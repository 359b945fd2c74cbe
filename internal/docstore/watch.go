package docstore

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"feedsync/internal/observability"
)

// watcher drives one live query. Change notices only wake it; it then
// re-reads the current state and delivers when that state differs from
// the last delivery. Bursts of writes therefore coalesce, and a state is
// never delivered twice.
type watcher struct {
	collection string
	wake       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	stopped    atomic.Bool
}

func (w *watcher) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.done)
	})
}

func (w *watcher) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

type registry struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

func newRegistry() *registry {
	return &registry{watchers: make(map[string]map[*watcher]struct{})}
}

func (r *registry) add(w *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[w.collection]
	if !ok {
		set = make(map[*watcher]struct{})
		r.watchers[w.collection] = set
	}
	set[w] = struct{}{}
}

func (r *registry) remove(w *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.watchers[w.collection]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(r.watchers, w.collection)
		}
	}
}

func (r *registry) notify(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for w := range r.watchers[collection] {
		w.notify()
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.watchers {
		n += len(set)
	}
	return n
}

// listen registers a watcher before the first read so no change between
// registration and the initial snapshot is lost. A read error is delivered
// once and terminates the listener.
func listen[T any](
	ctx context.Context,
	reg *registry,
	backend string,
	collection string,
	poll func(ctx context.Context) (T, string, error),
	fn func(T, error),
) Registration {
	w := &watcher{
		collection: collection,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	reg.add(w)
	log := observability.NewStoreLogger(backend)

	go func() {
		defer reg.remove(w)
		var last string
		delivered := false
		for {
			if w.stopped.Load() {
				return
			}
			res, sig, err := poll(ctx)
			if err != nil {
				if ctx.Err() != nil || w.stopped.Load() {
					return
				}
				log.LogListenerError(ctx, collection, err)
				var zero T
				w.deliver(ctx, log, func() { fn(zero, err) })
				w.Stop()
				return
			}
			if !delivered || sig != last {
				last, delivered = sig, true
				w.deliver(ctx, log, func() { fn(res, nil) })
			}
			select {
			case <-ctx.Done():
				w.Stop()
				return
			case <-w.done:
				return
			case <-w.wake:
			}
		}
	}()
	return w
}

func (w *watcher) deliver(ctx context.Context, log *observability.StoreLogger, call func()) {
	if w.stopped.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.LogPanic(ctx, w.collection, r, debug.Stack())
		}
	}()
	call()
}

func docSignature(s *Snapshot) string {
	if !s.Exists {
		return "missing"
	}
	return strconv.FormatInt(s.Version, 10)
}

func querySignature(snaps []*Snapshot) string {
	var b strings.Builder
	for _, s := range snaps {
		b.WriteString(s.Ref.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(s.Version, 10))
		b.WriteByte(';')
	}
	return b.String()
}
