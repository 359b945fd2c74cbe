// Package bootstrap wires configuration into a ready-to-use runtime.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedsync/internal/cache"
	"feedsync/internal/config"
	"feedsync/internal/database"
	"feedsync/internal/docstore"
	"feedsync/internal/handlers"
	"feedsync/internal/identity"
	"feedsync/internal/notifications"
	"feedsync/internal/observability"
	"feedsync/internal/repository"
	"feedsync/internal/service"
	"feedsync/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServiceName identifies this process in traces.
const ServiceName = "feedsync"

// Runtime holds every long-lived dependency built from a Config.
type Runtime struct {
	Config *config.Config
	Store  docstore.Store
	DB     *gorm.DB
	Redis  *redis.Client

	Uploader      storage.Uploader
	Session       *identity.AnonymousSession
	Users         repository.UserRepository
	Posts         *service.PostService
	Comments      *service.CommentService
	Subscriptions *service.SubscriptionService

	cancel          context.CancelFunc
	shutdownTracing func(context.Context) error
}

// Limits maps the configured limits onto the services.
func Limits(cfg *config.Config) service.Limits {
	return service.Limits{
		FeedLimit:        cfg.FeedLimit,
		SearchLimit:      cfg.SearchLimit,
		DeleteBatchSize:  cfg.DeleteBatchSize,
		MaxCommentLength: cfg.MaxCommentLength,
		SnippetLength:    cfg.SnippetLength,
	}
}

// InitRuntime builds the store selected by cfg (memory, or SQL with the
// Redis change feed), the uploader, the anonymous session and the services.
// Redis is optional: without it listeners only see writes from this process.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	ctx, rt.cancel = context.WithCancel(ctx)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  ServiceName,
		Environment:  cfg.Env,
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplerRatio: cfg.TracingSamplerRatio,
	})
	if err != nil {
		rt.cancel()
		return nil, err
	}
	rt.shutdownTracing = shutdown

	if err := rt.initStore(ctx); err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	rt.Uploader = uploader

	limits := Limits(cfg)
	postRepo := repository.NewPostRepository(rt.Store)
	rt.Users = repository.NewUserRepository(rt.Store)
	rt.Session = identity.NewAnonymousSession(rt.Users, cfg.SessionSecret)
	rt.Posts = service.NewPostService(rt.Store, postRepo, repository.NewReportRepository(rt.Store), rt.Uploader, rt.Session, limits)
	rt.Comments = service.NewCommentService(rt.Store, postRepo, rt.Session, limits)
	rt.Subscriptions = service.NewSubscriptionService(rt.Store, limits)
	return rt, nil
}

func (rt *Runtime) initStore(ctx context.Context) error {
	cfg := rt.Config
	opts := []docstore.Option{docstore.WithMaxAttempts(cfg.TxMaxAttempts)}

	if cfg.StoreDriver == config.StoreMemory {
		rt.Store = docstore.NewMemoryStore(opts...)
		return nil
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db

	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			observability.Logger.Warn("continuing without change feed", slog.String("error", err.Error()))
		} else {
			rt.Redis = rdb
			opts = append(opts, docstore.WithChangeFeed(notifications.NewNotifier(rdb)))
		}
	}

	store := docstore.NewSQLStore(db, opts...)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("start change feed: %w", err)
	}
	rt.Store = store
	return nil
}

func newUploader(cfg *config.Config) (storage.Uploader, error) {
	switch cfg.UploadDriver {
	case config.UploadS3:
		u, err := storage.NewS3Uploader(cfg.S3Bucket, cfg.S3Region, cfg.UploadBaseURL)
		if err != nil {
			return nil, fmt.Errorf("s3 uploader: %w", err)
		}
		return u, nil
	default:
		return storage.NewLocalUploader(cfg.UploadDir, cfg.UploadBaseURL), nil
	}
}

// HealthChecks returns one check per external dependency in use.
func (rt *Runtime) HealthChecks() map[string]handlers.Checker {
	checks := make(map[string]handlers.Checker)
	if rt.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := rt.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close stops the change feed and releases Redis, the database and the
// tracer. It is safe to call on a partly built runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, database.Close(rt.DB))
	}
	if rt.shutdownTracing != nil {
		errs = append(errs, rt.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
