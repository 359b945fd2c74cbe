package notifications

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/database"
	"feedsync/internal/docstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishChange(context.Background(), "posts"))
	assert.NoError(t, n.SubscribeChanges(context.Background(), func(string) {}))
}

func TestChangeChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "docstore:changes:posts", ChangeChannel("posts"))
	assert.Equal(t, "docstore:changes:posts/p1/likes", ChangeChannel("posts/p1/likes"))
}

func TestNotifier_SubscribeChanges(t *testing.T) {
	n := NewNotifier(newRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	require.NoError(t, n.SubscribeChanges(ctx, func(collection string) {
		mu.Lock()
		got = append(got, collection)
		mu.Unlock()
	}))

	require.NoError(t, n.PublishChange(context.Background(), "posts"))
	require.NoError(t, n.PublishChange(context.Background(), "posts/p1/likes"))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return assert.ObjectsAreEqual([]string{"posts", "posts/p1/likes"}, got)
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscribeChanges_StopsOnCancel(t *testing.T) {
	n := NewNotifier(newRedis(t))
	ctx, cancel := context.WithCancel(context.Background())

	var received int32
	require.NoError(t, n.SubscribeChanges(ctx, func(string) { atomic.AddInt32(&received, 1) }))
	require.NoError(t, n.PublishChange(context.Background(), "posts"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	_ = n.PublishChange(context.Background(), "posts")
	assert.Never(t, func() bool { return atomic.LoadInt32(&received) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_SubscribeChanges_RecoversPanic(t *testing.T) {
	n := NewNotifier(newRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, n.SubscribeChanges(ctx, func(string) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
	}))
	require.NoError(t, n.PublishChange(context.Background(), "a"))
	require.NoError(t, n.PublishChange(context.Background(), "b"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 10*time.Millisecond)
}

func openSharedSQLite(t *testing.T) (*gorm.DB, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	open := func() *gorm.DB {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
		return db
	}
	return open(), open()
}

// Two stores over one database only see each other's writes through the feed.
func TestNotifier_WakesListenersAcrossStores(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbA, dbB := openSharedSQLite(t)
	writer := docstore.NewSQLStore(dbA, docstore.WithChangeFeed(NewNotifier(rdb)))
	reader := docstore.NewSQLStore(dbB, docstore.WithChangeFeed(NewNotifier(rdb)))
	require.NoError(t, database.Migrate(ctx, dbA))
	require.NoError(t, reader.Start(ctx))

	var latest atomic.Int32
	reg := reader.ListenQuery(ctx, docstore.NewQuery("posts"), func(snaps []*docstore.Snapshot, err error) {
		assert.NoError(t, err)
		latest.Store(int32(len(snaps)))
	})
	defer reg.Stop()

	_, err := writer.Add(ctx, "posts", docstore.Fields{"title": "one"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return latest.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = writer.Add(ctx, "posts", docstore.Fields{"title": "two"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return latest.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}
