package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"feedsync/internal/observability"

	"github.com/google/uuid"
)

const memoryBackend = "memory"

type memDoc struct {
	data    Fields
	version int64
}

// MemoryStore keeps documents in process memory. It is safe for concurrent
// use and implements the same commit semantics as SQLStore.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string]*memDoc
	clock    *clock
	watchers *registry
	opts     options
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]*memDoc),
		clock:    newClock(),
		watchers: newRegistry(),
		opts:     buildOptions(opts),
	}
}

func (s *MemoryStore) snapshot(ref Ref) *Snapshot {
	d, ok := s.docs[ref.Collection][ref.ID]
	if !ok {
		return &Snapshot{Ref: ref}
	}
	return &Snapshot{Ref: ref, Exists: true, Data: cloneFields(d.data), Version: d.version}
}

// Get returns the current snapshot of ref.
func (s *MemoryStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: invalid ref %q", ErrInvalidValue, ref.Path())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(ref), nil
}

// Query evaluates q against the collection.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	coll := s.docs[q.Collection]
	all := make([]*Snapshot, 0, len(coll))
	for id := range coll {
		all = append(all, s.snapshot(Ref{Collection: q.Collection, ID: id}))
	}
	s.mu.RUnlock()
	return q.apply(all), nil
}

// NewRef allocates a fresh document id in collection.
func (s *MemoryStore) NewRef(collection string) Ref {
	return Ref{Collection: collection, ID: uuid.NewString()}
}

// Add creates a document with a generated id.
func (s *MemoryStore) Add(ctx context.Context, collection string, data Fields) (Ref, error) {
	ref := s.NewRef(collection)
	if err := s.Batch().Create(ref, data).Commit(ctx); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (s *MemoryStore) Set(ctx context.Context, ref Ref, data Fields) error {
	return s.Batch().Set(ref, data).Commit(ctx)
}

func (s *MemoryStore) Update(ctx context.Context, ref Ref, data Fields) error {
	return s.Batch().Update(ref, data).Commit(ctx)
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	return s.Batch().Delete(ref).Commit(ctx)
}

// Batch starts an atomic write batch.
func (s *MemoryStore) Batch() WriteBatch {
	return newBatch(s.commit)
}

// RunTransaction runs fn with optimistic concurrency control.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, memoryBackend, s.opts.maxAttempts, s.Get, s.commit, fn)
}

func (s *MemoryStore) commit(ctx context.Context, reads map[Ref]int64, writes []write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for ref, version := range reads {
		var current int64
		if d, ok := s.docs[ref.Collection][ref.ID]; ok {
			current = d.version
		}
		if current != version {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrConflict, ref)
		}
	}

	now := s.clock.next()
	staged := make(map[Ref]*memDoc)
	touched := make(map[string]struct{})
	for _, w := range writes {
		cur, ok := staged[w.ref]
		if !ok {
			if d, exists := s.docs[w.ref.Collection][w.ref.ID]; exists {
				cur = d
			}
		}
		var curData Fields
		if cur != nil {
			curData = cur.data
		}
		next, exists, err := applyWrite(curData, cur != nil, w, now)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if exists {
			staged[w.ref] = &memDoc{data: next, version: now.UnixNano()}
		} else {
			staged[w.ref] = nil
		}
		touched[w.ref.Collection] = struct{}{}
	}

	for ref, d := range staged {
		coll := s.docs[ref.Collection]
		if d == nil {
			if coll != nil {
				delete(coll, ref.ID)
			}
			continue
		}
		if coll == nil {
			coll = make(map[string]*memDoc)
			s.docs[ref.Collection] = coll
		}
		coll[ref.ID] = d
	}
	s.mu.Unlock()

	collections := make([]string, 0, len(touched))
	for c := range touched {
		collections = append(collections, c)
	}
	sort.Strings(collections)
	for _, c := range collections {
		s.watchers.notify(c)
	}
	return nil
}

// ListenDoc delivers the current snapshot of ref and every later change.
func (s *MemoryStore) ListenDoc(ctx context.Context, ref Ref, fn func(*Snapshot, error)) Registration {
	return listen(ctx, s.watchers, memoryBackend, ref.Collection,
		func(ctx context.Context) (*Snapshot, string, error) {
			snap, err := s.Get(ctx, ref)
			if err != nil {
				return nil, "", err
			}
			return snap, docSignature(snap), nil
		}, fn)
}

// ListenQuery delivers the full result of q and re-delivers it on every change.
func (s *MemoryStore) ListenQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Registration {
	return listen(ctx, s.watchers, memoryBackend, q.Collection,
		func(ctx context.Context) ([]*Snapshot, string, error) {
			defer observability.TrackStoreOperation(memoryBackend, "listen", q.Collection)()
			snaps, err := s.Query(ctx, q)
			if err != nil {
				return nil, "", err
			}
			return snaps, querySignature(snaps), nil
		}, fn)
}

// ActiveListeners reports how many listeners are still registered.
func (s *MemoryStore) ActiveListeners() int {
	return s.watchers.count()
}
