package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedsync/internal/config"
	"feedsync/internal/docstore"
	"feedsync/internal/models"
	"feedsync/internal/service"
	"feedsync/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                 "test",
		StoreDriver:         config.StoreMemory,
		FeedLimit:           50,
		SearchLimit:         20,
		DeleteBatchSize:     450,
		MaxCommentLength:    1000,
		SnippetLength:       140,
		TxMaxAttempts:       5,
		UploadDriver:        config.UploadLocal,
		UploadDir:           t.TempDir(),
		UploadBaseURL:       "http://localhost/uploads",
		SessionSecret:       "test-session-secret-at-least-32-chars",
		TracingSamplerRatio: 1,
	}
}

func TestLimits(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, service.Limits{
		FeedLimit:        50,
		SearchLimit:      20,
		DeleteBatchSize:  450,
		MaxCommentLength: 1000,
		SnippetLength:    140,
	}, Limits(cfg))
}

func TestInitRuntime_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	rt, err := InitRuntime(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close(ctx)) }()

	assert.IsType(t, &docstore.MemoryStore{}, rt.Store)
	assert.IsType(t, &storage.LocalUploader{}, rt.Uploader)
	assert.Nil(t, rt.DB)
	assert.Nil(t, rt.Redis)

	profile, _, err := rt.Session.EnsureSignedIn(ctx)
	require.NoError(t, err)

	image := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg"), 0o600))

	post, err := rt.Posts.CreatePost(ctx, service.CreatePostInput{
		Title: "시험 후기", Body: "body", Lessons: "lessons", ImageURI: image,
	})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, post.AuthorID)
	assert.Contains(t, post.ImageURL, "http://localhost/uploads/posts/"+profile.ID+"/")

	_, err = rt.Comments.AddComment(ctx, post.ID, "hello")
	require.NoError(t, err)

	got := make(chan *models.Post, 8)
	h, err := rt.Subscriptions.SubscribePost(ctx, post.ID, func(p *models.Post, _ []*models.Comment, err error) {
		if err == nil && p != nil {
			got <- p
		}
	})
	require.NoError(t, err)
	defer h.Dispose()

	select {
	case p := <-got:
		assert.Equal(t, int64(1), p.CommentCount)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestInitRuntime_SQLiteWithRedis(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(t)
	cfg.StoreDriver = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "feedsync.db")
	cfg.RedisURL = "redis://" + mr.Addr()

	rt, err := InitRuntime(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close(ctx)) }()

	assert.IsType(t, &docstore.SQLStore{}, rt.Store)
	require.NotNil(t, rt.DB)
	require.NotNil(t, rt.Redis)

	checks := rt.HealthChecks()
	require.Len(t, checks, 2)
	assert.NoError(t, checks["database"](ctx))
	assert.NoError(t, checks["redis"](ctx))

	post, err := rt.Posts.CreatePost(ctx, service.CreatePostInput{Title: "t", Body: "b", Lessons: "l"})
	require.NoError(t, err)
	liked, err := rt.Posts.ToggleLike(ctx, post.ID, "actor")
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestInitRuntime_RedisUnavailable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.StoreDriver = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "feedsync.db")
	cfg.RedisURL = "redis://127.0.0.1:1"

	rt, err := InitRuntime(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = rt.Close(ctx) }()
	assert.Nil(t, rt.Redis)
	assert.NotContains(t, rt.HealthChecks(), "redis")
}
