package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
	"feedsync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

// postRecorder collects deliveries from a post list subscription.
type postRecorder struct {
	mu    sync.Mutex
	lists [][]*models.Post
	errs  []error
}

func (r *postRecorder) record(posts []*models.Post, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.lists = append(r.lists, posts)
}

func (r *postRecorder) latestTitles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return nil
	}
	titles := []string{}
	for _, p := range r.lists[len(r.lists)-1] {
		titles = append(titles, p.Title)
	}
	return titles
}

func (r *postRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

func TestSubscriptionService_SubscribeFeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, docstore.NewMemoryStore(), "u1", Limits{FeedLimit: 3})

	for i := 1; i <= 4; i++ {
		f.createPost(t, fmt.Sprintf("post %d", i), "body")
	}
	hidden := f.createPost(t, "hidden", "body")
	require.NoError(t, f.store.Update(ctx, repository.PostRef(hidden.ID), docstore.Fields{"status": "hidden"}))

	rec := &postRecorder{}
	h := f.subSvc.SubscribeFeed(ctx, 0, rec.record)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"post 4", "post 3", "post 2"}, rec.latestTitles())
	}, waitFor, tick)

	f.createPost(t, "post 5", "body")
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"post 5", "post 4", "post 3"}, rec.latestTitles())
	}, waitFor, tick)

	h.Dispose()
	n := rec.count()
	f.createPost(t, "post 6", "body")
	assert.Never(t, func() bool { return rec.count() != n }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSubscriptionService_SubscribeFeed_PostWithoutStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, docstore.NewMemoryStore(), "u1", DefaultLimits())

	f.createPost(t, "old", "body")
	// Written before posts carried a status field.
	require.NoError(t, f.store.Set(ctx, repository.PostRef("legacy"), docstore.Fields{
		"title":     "legacy",
		"body":      "body",
		"createdAt": docstore.ServerTimestamp,
	}))
	f.createPost(t, "new", "body")

	rec := &postRecorder{}
	h := f.subSvc.SubscribeFeed(ctx, 0, rec.record)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"new", "legacy", "old"}, rec.latestTitles())
	}, waitFor, tick)
}

func TestSubscriptionService_SubscribeFeed_PerCallLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, docstore.NewMemoryStore(), "u1", Limits{FeedLimit: 3})

	for i := 1; i <= 4; i++ {
		f.createPost(t, fmt.Sprintf("post %d", i), "body")
	}
	hidden := f.createPost(t, "hidden", "body")
	require.NoError(t, f.store.Update(ctx, repository.PostRef(hidden.ID), docstore.Fields{"status": "hidden"}))

	rec := &postRecorder{}
	h := f.subSvc.SubscribeFeed(ctx, 1, rec.record)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"post 4"}, rec.latestTitles())
	}, waitFor, tick)
}

func TestVisiblePosts(t *testing.T) {
	t.Parallel()
	posts := []*models.Post{
		{Title: "a", Status: models.PostStatusHidden},
		{Title: "b", Status: models.PostStatusActive},
		{Title: "c"},
		{Title: "d", Status: models.PostStatusActive},
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{1, []string{"b"}},
		{2, []string{"b", "c"}},
		{10, []string{"b", "c", "d"}},
	}
	for _, tt := range tests {
		var got []string
		for _, p := range visiblePosts(posts, tt.limit) {
			got = append(got, p.Title)
		}
		assert.Equal(t, tt.want, got, "limit %d", tt.limit)
	}
}

func TestSubscriptionService_SearchByTitlePrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, docstore.NewMemoryStore(), "u1", DefaultLimits())

	f.createPost(t, "시험 끝", "body")
	f.createPost(t, "시험공부 Tips", "body")
	f.createPost(t, "기말 시험", "body")
	f.createPost(t, "Exam", "body")
	// A post written before titleLower existed.
	require.NoError(t, f.store.Set(ctx, repository.PostRef("legacy"), docstore.Fields{
		"title":     "시험 legacy",
		"status":    "active",
		"createdAt": docstore.ServerTimestamp,
	}))

	rec := &postRecorder{}
	h, err := f.subSvc.SearchByTitlePrefix(ctx, "시험", rec.record)
	require.NoError(t, err)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"시험 끝", "시험공부 Tips"}, rec.latestTitles())
	}, waitFor, tick)

	rec2 := &postRecorder{}
	h2, err := f.subSvc.SearchByTitlePrefix(ctx, "EX", rec2.record)
	require.NoError(t, err)
	defer h2.Dispose()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Exam"}, rec2.latestTitles())
	}, waitFor, tick)

	_, err = f.subSvc.SearchByTitlePrefix(ctx, "  ", rec.record)
	assertValidationError(t, err)
}

func TestSubscriptionService_SearchLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, docstore.NewMemoryStore(), "u1", DefaultLimits())
	for i := 0; i < 25; i++ {
		f.createPost(t, fmt.Sprintf("a%02d", i), "body")
	}
	rec := &postRecorder{}
	h, err := f.subSvc.SearchByTitlePrefix(context.Background(), "a", rec.record)
	require.NoError(t, err)
	defer h.Dispose()

	assert.Eventually(t, func() bool { return len(rec.latestTitles()) == DefaultSearchLimit }, waitFor, tick)
	assert.Equal(t, "a00", rec.latestTitles()[0])
}

func TestSubscriptionService_SubscribeAuthorPosts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	mine := newFixture(t, store, "me", DefaultLimits())
	theirs := newFixture(t, store, "them", DefaultLimits())

	mine.createPost(t, "mine 1", "body")
	theirs.createPost(t, "theirs", "body")
	mine.createPost(t, "mine 2", "body")

	rec := &postRecorder{}
	h, err := mine.subSvc.SubscribeAuthorPosts(ctx, "me", rec.record)
	require.NoError(t, err)
	defer h.Dispose()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"mine 2", "mine 1"}, rec.latestTitles())
	}, waitFor, tick)

	_, err = mine.subSvc.SubscribeAuthorPosts(ctx, "", rec.record)
	assertValidationError(t, err)
}

type postView struct {
	post     *models.Post
	comments []*models.Comment
}

type viewRecorder struct {
	mu    sync.Mutex
	views []postView
}

func (r *viewRecorder) record(p *models.Post, c []*models.Comment, err error) {
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, postView{post: p, comments: c})
}

func (r *viewRecorder) latest() (postView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return postView{}, false
	}
	return r.views[len(r.views)-1], true
}

func (r *viewRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func TestSubscriptionService_SubscribePost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	f := newFixture(t, store, "u1", DefaultLimits())
	post := f.createPost(t, "title", "body")
	_, err := f.comSvc.AddComment(ctx, post.ID, "first")
	require.NoError(t, err)

	rec := &viewRecorder{}
	h, err := f.subSvc.SubscribePost(ctx, post.ID, rec.record)
	require.NoError(t, err)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		v, ok := rec.latest()
		return ok && v.post != nil && len(v.comments) == 1 && v.comments[0].Body() == "first"
	}, waitFor, tick)

	_, err = f.comSvc.AddComment(ctx, post.ID, "second")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		v, _ := rec.latest()
		return v.post != nil && v.post.CommentCount == 2 &&
			len(v.comments) == 2 && v.comments[1].Body() == "second"
	}, waitFor, tick)

	_, err = f.postSvc.ToggleLike(ctx, post.ID, "a")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		v, _ := rec.latest()
		return v.post != nil && v.post.LikeCount == 1 && len(v.comments) == 2
	}, waitFor, tick)

	_, err = f.postSvc.DeletePostAndComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		v, ok := rec.latest()
		return ok && v.post == nil && v.comments == nil
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return store.ActiveListeners() == 1 }, waitFor, tick,
		"the comment listener goes away with the post")

	h.Dispose()
	assert.Eventually(t, func() bool { return store.ActiveListeners() == 0 }, waitFor, tick)
}

func TestSubscriptionService_SubscribePost_Missing(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	f := newFixture(t, store, "u1", DefaultLimits())

	rec := &viewRecorder{}
	h, err := f.subSvc.SubscribePost(context.Background(), "nope", rec.record)
	require.NoError(t, err)
	defer h.Dispose()

	assert.Eventually(t, func() bool {
		v, ok := rec.latest()
		return ok && v.post == nil
	}, waitFor, tick)
	assert.Equal(t, 1, store.ActiveListeners())

	_, err = f.subSvc.SubscribePost(context.Background(), "", rec.record)
	assertValidationError(t, err)
}

func TestSubscriptionService_SubscribePost_DisposeDuringChildEstablish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := docstore.NewMemoryStore()
	f := newFixture(t, inner, "u1", DefaultLimits())
	post := f.createPost(t, "title", "body")

	gated := newGatedStore(inner)
	svc := NewSubscriptionService(gated, DefaultLimits())

	rec := &viewRecorder{}
	h, err := svc.SubscribePost(ctx, post.ID, rec.record)
	require.NoError(t, err)

	select {
	case <-gated.entered:
	case <-time.After(waitFor):
		t.Fatal("comment listener was never requested")
	}

	h.Dispose()
	close(gated.release)

	assert.Eventually(t, func() bool {
		regs := gated.registrations()
		return len(regs) == 1 && regs[0].stopped.Load()
	}, waitFor, tick, "a child established after dispose is stopped")
	assert.Eventually(t, func() bool { return inner.ActiveListeners() == 0 }, waitFor, tick)

	_, err = f.comSvc.AddComment(ctx, post.ID, "late")
	require.NoError(t, err)
	assert.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
