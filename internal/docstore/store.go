// Package docstore is a schemaless document store client: collections of
// documents addressed by id, with live queries, bounded atomic batches and
// optimistic-concurrency transactions.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// MaxBatchWrites is the ceiling on writes in one atomic batch.
const MaxBatchWrites = 500

// DefaultMaxAttempts is how many times a transaction runs before giving up.
const DefaultMaxAttempts = 5

var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrAlreadyExists    = errors.New("docstore: document already exists")
	ErrConflict         = errors.New("docstore: concurrent modification")
	ErrPermissionDenied = errors.New("docstore: permission denied")
	ErrBatchTooLarge    = errors.New("docstore: batch exceeds write limit")
	ErrReadAfterWrite   = errors.New("docstore: transaction reads must precede writes")
	ErrInvalidValue     = errors.New("docstore: unsupported field value")
)

// Fields is the content of a document.
type Fields map[string]any

// Ref addresses one document. Collection may be a nested path such as
// "posts/p1/likes".
type Ref struct {
	Collection string
	ID         string
}

// Path returns "collection/id".
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

func (r Ref) String() string {
	return r.Path()
}

// Valid reports whether both parts of the ref are usable.
func (r Ref) Valid() bool {
	return r.Collection != "" && r.ID != "" && !strings.Contains(r.ID, "/")
}

// Snapshot is a point-in-time view of a document. A missing document is
// reported with Exists false rather than an error.
type Snapshot struct {
	Ref     Ref
	Exists  bool
	Data    Fields
	Version int64
}

// ID is shorthand for Ref.ID.
func (s *Snapshot) ID() string {
	return s.Ref.ID
}

// Registration is returned by the Listen methods. Stop is idempotent; after
// it returns no new callback starts.
type Registration interface {
	Stop()
}

// Store is the document store capability consumed by the services.
type Store interface {
	Get(ctx context.Context, ref Ref) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	NewRef(collection string) Ref
	Add(ctx context.Context, collection string, data Fields) (Ref, error)
	Set(ctx context.Context, ref Ref, data Fields) error
	Update(ctx context.Context, ref Ref, data Fields) error
	Delete(ctx context.Context, ref Ref) error
	Batch() WriteBatch
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListenDoc(ctx context.Context, ref Ref, fn func(*Snapshot, error)) Registration
	ListenQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Registration
}

// WriteBatch collects writes that commit atomically.
type WriteBatch interface {
	Set(ref Ref, data Fields) WriteBatch
	Create(ref Ref, data Fields) WriteBatch
	Update(ref Ref, data Fields) WriteBatch
	Delete(ref Ref) WriteBatch
	Len() int
	Commit(ctx context.Context) error
}

// Tx is the view of the store inside RunTransaction. All reads must happen
// before the first write.
type Tx interface {
	Get(ref Ref) (*Snapshot, error)
	Set(ref Ref, data Fields) error
	Create(ref Ref, data Fields) error
	Update(ref Ref, data Fields) error
	Delete(ref Ref) error
}

// ChangeFeed fans collection change notices out to other processes.
type ChangeFeed interface {
	PublishChange(ctx context.Context, collection string) error
	SubscribeChanges(ctx context.Context, onChange func(collection string)) error
}

type options struct {
	maxAttempts int
	feed        ChangeFeed
}

// Option configures a store.
type Option func(*options)

// WithMaxAttempts caps transaction attempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithChangeFeed publishes every commit to feed and wakes local listeners
// on changes made by other processes.
func WithChangeFeed(feed ChangeFeed) Option {
	return func(o *options) {
		o.feed = feed
	}
}

func buildOptions(opts []Option) options {
	o := options{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
