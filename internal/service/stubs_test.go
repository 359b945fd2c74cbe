package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"feedsync/internal/docstore"
	"feedsync/internal/identity"
	"feedsync/internal/models"
	"feedsync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts every write-side call that reaches the store.
type countingStore struct {
	docstore.Store
	writes atomic.Int32
}

func (s *countingStore) Add(ctx context.Context, c string, d docstore.Fields) (docstore.Ref, error) {
	s.writes.Add(1)
	return s.Store.Add(ctx, c, d)
}
func (s *countingStore) Set(ctx context.Context, r docstore.Ref, d docstore.Fields) error {
	s.writes.Add(1)
	return s.Store.Set(ctx, r, d)
}
func (s *countingStore) Update(ctx context.Context, r docstore.Ref, d docstore.Fields) error {
	s.writes.Add(1)
	return s.Store.Update(ctx, r, d)
}
func (s *countingStore) Delete(ctx context.Context, r docstore.Ref) error {
	s.writes.Add(1)
	return s.Store.Delete(ctx, r)
}
func (s *countingStore) Batch() docstore.WriteBatch {
	s.writes.Add(1)
	return s.Store.Batch()
}
func (s *countingStore) RunTransaction(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	s.writes.Add(1)
	return s.Store.RunTransaction(ctx, fn)
}

// batchFaultStore fails batch commits chosen by failFn, numbered from 1.
type batchFaultStore struct {
	docstore.Store
	commits atomic.Int32
	failFn  func(n int32) error
}

func (s *batchFaultStore) Batch() docstore.WriteBatch {
	return &faultBatch{WriteBatch: s.Store.Batch(), store: s}
}

type faultBatch struct {
	docstore.WriteBatch
	store *batchFaultStore
}

func (b *faultBatch) Delete(ref docstore.Ref) docstore.WriteBatch {
	b.WriteBatch.Delete(ref)
	return b
}

func (b *faultBatch) Commit(ctx context.Context) error {
	n := b.store.commits.Add(1)
	if err := b.store.failFn(n); err != nil {
		return err
	}
	return b.WriteBatch.Commit(ctx)
}

// deniedStore rejects every delete the way a store policy would.
type deniedStore struct {
	docstore.Store
}

func (s *deniedStore) Delete(context.Context, docstore.Ref) error {
	return docstore.ErrPermissionDenied
}

func (s *deniedStore) Batch() docstore.WriteBatch {
	return &deniedBatch{WriteBatch: s.Store.Batch()}
}

type deniedBatch struct {
	docstore.WriteBatch
}

func (b *deniedBatch) Delete(ref docstore.Ref) docstore.WriteBatch {
	b.WriteBatch.Delete(ref)
	return b
}

func (b *deniedBatch) Commit(context.Context) error {
	return docstore.ErrPermissionDenied
}

// gatedStore holds ListenQuery until release is closed, and records every
// registration it hands out.
type gatedStore struct {
	docstore.Store
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	regs []*trackedRegistration
}

type trackedRegistration struct {
	docstore.Registration
	stopped atomic.Bool
}

func (r *trackedRegistration) Stop() {
	r.stopped.Store(true)
	r.Registration.Stop()
}

func newGatedStore(inner docstore.Store) *gatedStore {
	return &gatedStore{
		Store:   inner,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) ListenQuery(ctx context.Context, q docstore.Query, fn func([]*docstore.Snapshot, error)) docstore.Registration {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	reg := &trackedRegistration{Registration: s.Store.ListenQuery(ctx, q, fn)}
	s.mu.Lock()
	s.regs = append(s.regs, reg)
	s.mu.Unlock()
	return reg
}

func (s *gatedStore) registrations() []*trackedRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*trackedRegistration(nil), s.regs...)
}

// fakeUploader records uploads and returns a URL under https://cdn.test/.
type fakeUploader struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, localPath, destPath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, [2]string{localPath, destPath})
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.test/" + destPath, nil
}

type fixture struct {
	store    docstore.Store
	posts    repository.PostRepository
	postSvc  *PostService
	comSvc   *CommentService
	subSvc   *SubscriptionService
	uploader *fakeUploader
}

func newFixture(t *testing.T, store docstore.Store, actor string, limits Limits) *fixture {
	t.Helper()
	posts := repository.NewPostRepository(store)
	uploader := &fakeUploader{}
	actors := identity.Static(actor)
	return &fixture{
		store:    store,
		posts:    posts,
		postSvc:  NewPostService(store, posts, repository.NewReportRepository(store), uploader, actors, limits),
		comSvc:   NewCommentService(store, posts, actors, limits),
		subSvc:   NewSubscriptionService(store, limits),
		uploader: uploader,
	}
}

// listComments reads the comments of postID once, oldest first.
func (f *fixture) listComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	snaps, err := f.store.Query(ctx, repository.OrderedCommentsQuery(postID))
	if err != nil {
		return nil, err
	}
	return repository.CommentsFromSnapshots(snaps), nil
}

func (f *fixture) createPost(t *testing.T, title, body string) *models.Post {
	t.Helper()
	post, err := f.postSvc.CreatePost(context.Background(), CreatePostInput{
		Title:   title,
		Body:    body,
		Lessons: "lesson",
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) getPost(t *testing.T, id string) *models.Post {
	t.Helper()
	post, err := f.posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return post
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T (%v)", err, err)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T (%v)", err, err)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}
