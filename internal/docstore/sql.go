package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"feedsync/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sqlBackend = "sql"

// Document is the row layout of the documents table. Data holds the
// fields in a type-tagged JSON encoding.
type Document struct {
	Collection string `gorm:"primaryKey;size:512"`
	DocID      string `gorm:"primaryKey;column:doc_id;size:255"`
	Data       string `gorm:"type:text;not null"`
	Version    int64  `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName pins the table name.
func (Document) TableName() string {
	return "documents"
}

// SQLStore persists documents through gorm (PostgreSQL or SQLite).
// Every write is guarded by the version it was staged against, which gives
// optimistic concurrency without holding row locks across a transaction.
type SQLStore struct {
	db       *gorm.DB
	clock    *clock
	watchers *registry
	opts     options
}

// NewSQLStore wraps db, whose documents table must already exist
// (database.Migrate). Call Start to follow changes made by other processes.
func NewSQLStore(db *gorm.DB, opts ...Option) *SQLStore {
	return &SQLStore{
		db:       db,
		clock:    newClock(),
		watchers: newRegistry(),
		opts:     buildOptions(opts),
	}
}

// Start subscribes to the change feed, if one was configured, until ctx ends.
func (s *SQLStore) Start(ctx context.Context) error {
	if s.opts.feed == nil {
		return nil
	}
	return s.opts.feed.SubscribeChanges(ctx, s.watchers.notify)
}

func loadRow(db *gorm.DB, ref Ref) (*Document, error) {
	var rows []Document
	if err := db.Where("collection = ? AND doc_id = ?", ref.Collection, ref.ID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func rowSnapshot(ref Ref, row *Document) (*Snapshot, error) {
	if row == nil {
		return &Snapshot{Ref: ref}, nil
	}
	data, err := decodeFields(row.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return &Snapshot{Ref: ref, Exists: true, Data: data, Version: row.Version}, nil
}

// Get returns the current snapshot of ref.
func (s *SQLStore) Get(ctx context.Context, ref Ref) (*Snapshot, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: invalid ref %q", ErrInvalidValue, ref.Path())
	}
	defer observability.TrackStoreOperation(sqlBackend, "get", ref.Collection)()
	row, err := loadRow(s.db.WithContext(ctx), ref)
	if err != nil {
		return nil, err
	}
	return rowSnapshot(ref, row)
}

var plainField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// stringFieldExpr returns the SQL expression reading a string field out of
// the tagged JSON data, or false when the dialect or name is not supported.
func (s *SQLStore) stringFieldExpr(field string) (string, bool) {
	if !plainField.MatchString(field) {
		return "", false
	}
	switch s.db.Dialector.Name() {
	case "postgres":
		return fmt.Sprintf("(data::jsonb -> '%s' ->> 's')", field), true
	case "sqlite":
		return fmt.Sprintf("json_extract(data, '$.%s.s')", field), true
	}
	return "", false
}

// Query narrows rows in SQL by collection and by string equality filters,
// then evaluates the full query in process. Range filters and ordering are
// not pushed down, so a query without an equality filter reads the whole
// collection.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation(sqlBackend, "query", q.Collection)()
	tx := s.db.WithContext(ctx).Where("collection = ?", q.Collection)
	for _, f := range q.stringEqualities() {
		if expr, ok := s.stringFieldExpr(f.field); ok {
			tx = tx.Where(expr+" = ?", f.value)
		}
	}
	var rows []Document
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	snaps := make([]*Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := rowSnapshot(Ref{Collection: q.Collection, ID: rows[i].DocID}, &rows[i])
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return q.apply(snaps), nil
}

// NewRef allocates a fresh document id in collection.
func (s *SQLStore) NewRef(collection string) Ref {
	return Ref{Collection: collection, ID: uuid.NewString()}
}

// Add creates a document with a generated id.
func (s *SQLStore) Add(ctx context.Context, collection string, data Fields) (Ref, error) {
	ref := s.NewRef(collection)
	if err := s.Batch().Create(ref, data).Commit(ctx); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (s *SQLStore) Set(ctx context.Context, ref Ref, data Fields) error {
	return s.Batch().Set(ref, data).Commit(ctx)
}

func (s *SQLStore) Update(ctx context.Context, ref Ref, data Fields) error {
	return s.Batch().Update(ref, data).Commit(ctx)
}

func (s *SQLStore) Delete(ctx context.Context, ref Ref) error {
	return s.Batch().Delete(ref).Commit(ctx)
}

// Batch starts an atomic write batch. Batches carry no reads, so a batch
// that loses a version race is re-staged and retried.
func (s *SQLStore) Batch() WriteBatch {
	return newBatch(s.commitBlind)
}

// RunTransaction runs fn with optimistic concurrency control.
func (s *SQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, sqlBackend, s.opts.maxAttempts, s.Get, s.commit, fn)
}

func (s *SQLStore) commitBlind(ctx context.Context, _ map[Ref]int64, writes []write) error {
	var err error
	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		err = s.commit(ctx, nil, writes)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt < s.opts.maxAttempts {
			if serr := sleepBackoff(ctx, attempt); serr != nil {
				return serr
			}
		}
	}
	return err
}

type stagedDoc struct {
	origExists  bool
	origVersion int64
	exists      bool
	data        Fields
}

func (s *SQLStore) commit(ctx context.Context, reads map[Ref]int64, writes []write) error {
	defer observability.TrackStoreOperation(sqlBackend, "commit", "")()
	touched := make(map[string]struct{})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.next()
		version := now.UnixNano()

		staged := make(map[Ref]*stagedDoc)
		var order []Ref
		for _, w := range writes {
			st, ok := staged[w.ref]
			if !ok {
				var err error
				st, err = stage(tx, w.ref)
				if err != nil {
					return err
				}
				if want, read := reads[w.ref]; read && want != st.origVersion {
					return fmt.Errorf("%w: %s", ErrConflict, w.ref)
				}
				staged[w.ref] = st
				order = append(order, w.ref)
			}
			next, exists, err := applyWrite(st.data, st.exists, w, now)
			if err != nil {
				return err
			}
			st.data, st.exists = next, exists
			touched[w.ref.Collection] = struct{}{}
		}

		if err := validateReadOnly(tx, reads, staged); err != nil {
			return err
		}

		sort.Slice(order, func(i, j int) bool { return order[i].Path() < order[j].Path() })
		for _, ref := range order {
			if err := persist(tx, ref, staged[ref], version, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for c := range touched {
		s.watchers.notify(c)
		if s.opts.feed != nil {
			if perr := s.opts.feed.PublishChange(ctx, c); perr != nil {
				observability.Logger.WarnContext(ctx, "change feed publish failed",
					slog.String("collection", c),
					slog.String("error", perr.Error()),
				)
			}
		}
	}
	return nil
}

func stage(tx *gorm.DB, ref Ref) (*stagedDoc, error) {
	row, err := loadRow(tx, ref)
	if err != nil {
		return nil, err
	}
	st := &stagedDoc{}
	if row != nil {
		data, err := decodeFields(row.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		st.origExists, st.exists = true, true
		st.origVersion = row.Version
		st.data = data
	}
	return st, nil
}

// validateReadOnly checks documents that were read but not written. An
// existing document is touched with a version-guarded no-op update, which
// also locks the row until commit.
func validateReadOnly(tx *gorm.DB, reads map[Ref]int64, staged map[Ref]*stagedDoc) error {
	refs := make([]Ref, 0, len(reads))
	for ref := range reads {
		if _, written := staged[ref]; !written {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path() < refs[j].Path() })

	for _, ref := range refs {
		want := reads[ref]
		if want == 0 {
			row, err := loadRow(tx, ref)
			if err != nil {
				return err
			}
			if row != nil {
				return fmt.Errorf("%w: %s", ErrConflict, ref)
			}
			continue
		}
		res := tx.Model(&Document{}).
			Where("collection = ? AND doc_id = ? AND version = ?", ref.Collection, ref.ID, want).
			UpdateColumn("version", gorm.Expr("version"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrConflict, ref)
		}
	}
	return nil
}

func persist(tx *gorm.DB, ref Ref, st *stagedDoc, version int64, now time.Time) error {
	switch {
	case st.exists && !st.origExists:
		raw, err := encodeFields(st.data)
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Document{
			Collection: ref.Collection,
			DocID:      ref.ID,
			Data:       raw,
			Version:    version,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrConflict, ref)
		}
	case st.exists && st.origExists:
		raw, err := encodeFields(st.data)
		if err != nil {
			return err
		}
		res := tx.Model(&Document{}).
			Where("collection = ? AND doc_id = ? AND version = ?", ref.Collection, ref.ID, st.origVersion).
			UpdateColumns(map[string]any{"data": raw, "version": version, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrConflict, ref)
		}
	case !st.exists && st.origExists:
		res := tx.Where("collection = ? AND doc_id = ? AND version = ?", ref.Collection, ref.ID, st.origVersion).
			Delete(&Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrConflict, ref)
		}
	}
	return nil
}

// ListenDoc delivers the current snapshot of ref and every later change.
func (s *SQLStore) ListenDoc(ctx context.Context, ref Ref, fn func(*Snapshot, error)) Registration {
	return listen(ctx, s.watchers, sqlBackend, ref.Collection,
		func(ctx context.Context) (*Snapshot, string, error) {
			snap, err := s.Get(ctx, ref)
			if err != nil {
				return nil, "", err
			}
			return snap, docSignature(snap), nil
		}, fn)
}

// ListenQuery delivers the full result of q and re-delivers it on every change.
func (s *SQLStore) ListenQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Registration {
	return listen(ctx, s.watchers, sqlBackend, q.Collection,
		func(ctx context.Context) ([]*Snapshot, string, error) {
			snaps, err := s.Query(ctx, q)
			if err != nil {
				return nil, "", err
			}
			return snaps, querySignature(snaps), nil
		}, fn)
}
