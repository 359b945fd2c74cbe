package docstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"feedsync/internal/observability"
)

type writeKind int

const (
	writeSet writeKind = iota
	writeCreate
	writeUpdate
	writeDelete
)

type write struct {
	kind writeKind
	ref  Ref
	data Fields
}

func newWrite(kind writeKind, ref Ref, data Fields) (write, error) {
	if !ref.Valid() {
		return write{}, fmt.Errorf("%w: invalid ref %q", ErrInvalidValue, ref.Path())
	}
	w := write{kind: kind, ref: ref}
	if kind != writeDelete {
		nd, err := normalizeFields(data)
		if err != nil {
			return write{}, err
		}
		w.data = nd
	}
	return w, nil
}

// applyWrite computes the document state after w. Set replaces, Update
// merges top-level fields into an existing document, Delete of a missing
// document is a no-op.
func applyWrite(cur Fields, exists bool, w write, now time.Time) (Fields, bool, error) {
	switch w.kind {
	case writeSet:
		return resolveFields(nil, w.data, now), true, nil
	case writeCreate:
		if exists {
			return nil, false, fmt.Errorf("%w: %s", ErrAlreadyExists, w.ref)
		}
		return resolveFields(nil, w.data, now), true, nil
	case writeUpdate:
		if !exists {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, w.ref)
		}
		return resolveFields(cur, w.data, now), true, nil
	case writeDelete:
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("unknown write kind %d", w.kind)
}

func resolveFields(base, data Fields, now time.Time) Fields {
	out := cloneFields(base)
	if out == nil {
		out = make(Fields, len(data))
	}
	for k, v := range data {
		if t, ok := v.(Transform); ok {
			out[k] = t.apply(out[k], now)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// commitFunc validates the read versions (0 for a missing document) and
// applies writes atomically, returning ErrConflict when a read is stale.
type commitFunc func(ctx context.Context, reads map[Ref]int64, writes []write) error

type readFunc func(ctx context.Context, ref Ref) (*Snapshot, error)

type batch struct {
	writes []write
	commit commitFunc
	err    error
}

func newBatch(commit commitFunc) *batch {
	return &batch{commit: commit}
}

func (b *batch) add(kind writeKind, ref Ref, data Fields) WriteBatch {
	if b.err != nil {
		return b
	}
	w, err := newWrite(kind, ref, data)
	if err != nil {
		b.err = err
		return b
	}
	b.writes = append(b.writes, w)
	return b
}

func (b *batch) Set(ref Ref, data Fields) WriteBatch    { return b.add(writeSet, ref, data) }
func (b *batch) Create(ref Ref, data Fields) WriteBatch { return b.add(writeCreate, ref, data) }
func (b *batch) Update(ref Ref, data Fields) WriteBatch { return b.add(writeUpdate, ref, data) }
func (b *batch) Delete(ref Ref) WriteBatch              { return b.add(writeDelete, ref, nil) }
func (b *batch) Len() int                               { return len(b.writes) }

func (b *batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(b.writes), MaxBatchWrites)
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.commit(ctx, nil, b.writes)
}

type transaction struct {
	ctx    context.Context
	read   readFunc
	reads  map[Ref]int64
	writes []write
}

func (t *transaction) Get(ref Ref) (*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: invalid ref %q", ErrInvalidValue, ref.Path())
	}
	snap, err := t.read(t.ctx, ref)
	if err != nil {
		return nil, err
	}
	if prev, seen := t.reads[ref]; seen && prev != snap.Version {
		return nil, fmt.Errorf("%w: %s changed during transaction", ErrConflict, ref)
	}
	t.reads[ref] = snap.Version
	return snap, nil
}

func (t *transaction) add(kind writeKind, ref Ref, data Fields) error {
	w, err := newWrite(kind, ref, data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, w)
	return nil
}

func (t *transaction) Set(ref Ref, data Fields) error    { return t.add(writeSet, ref, data) }
func (t *transaction) Create(ref Ref, data Fields) error { return t.add(writeCreate, ref, data) }
func (t *transaction) Update(ref Ref, data Fields) error { return t.add(writeUpdate, ref, data) }
func (t *transaction) Delete(ref Ref) error              { return t.add(writeDelete, ref, nil) }

// runTransaction runs fn until its reads survive commit or attempts run out.
// Each attempt starts from fresh reads, so fn must not leak side effects
// outside the Tx.
func runTransaction(
	ctx context.Context,
	backend string,
	maxAttempts int,
	read readFunc,
	commit commitFunc,
	fn func(ctx context.Context, tx Tx) error,
) error {
	log := observability.NewStoreLogger(backend)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &transaction{ctx: ctx, read: read, reads: make(map[Ref]int64)}
		err := fn(ctx, tx)
		if err == nil {
			err = commit(ctx, tx.reads, tx.writes)
		}
		if err == nil {
			observability.TransactionAttempts.WithLabelValues(backend, "committed").Inc()
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			observability.TransactionAttempts.WithLabelValues(backend, "aborted").Inc()
			return err
		}
		observability.TransactionAttempts.WithLabelValues(backend, "conflict").Inc()
		lastErr = err
		if attempt < maxAttempts {
			log.LogRetry(ctx, attempt, maxAttempts, err)
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}
	}
	observability.TransactionAttempts.WithLabelValues(backend, "exhausted").Inc()
	log.LogExhausted(ctx, maxAttempts)
	return fmt.Errorf("transaction gave up after %d attempts: %w", maxAttempts, lastErr)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(attempt*attempt) * time.Millisecond
	jitter := time.Duration(rand.Int64N(int64(time.Millisecond)))
	t := time.NewTimer(base + jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// clock hands out strictly increasing commit times. Versions are the
// commit time in nanoseconds, so a recreated document never reuses the
// version of its predecessor.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
