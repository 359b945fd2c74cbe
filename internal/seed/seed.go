package seed

import (
	"context"
	"fmt"

	"feedsync/internal/docstore"
	"feedsync/internal/identity"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/repository"
	"feedsync/internal/service"
)

// SeedOptions controls how much data Run creates.
type SeedOptions struct {
	Users              int
	Posts              int
	MaxCommentsPerPost int
	MaxLikesPerPost    int
	// AttachRatio is the chance that a post gets an attach comment.
	AttachRatio float64
	Seed        int64
}

// DefaultOptions is a small but lively feed.
func DefaultOptions() SeedOptions {
	return SeedOptions{
		Users:              10,
		Posts:              40,
		MaxCommentsPerPost: 6,
		MaxLikesPerPost:    8,
		AttachRatio:        0.3,
		Seed:               1,
	}
}

// Summary counts what Run created.
type Summary struct {
	Users          int
	Posts          int
	Comments       int
	AttachComments int
	Likes          int
}

// Seeder writes demo data through the services, acting as several actors.
type Seeder struct {
	users    repository.UserRepository
	posts    *service.PostService
	comments *service.CommentService
	factory  *Factory
	opts     SeedOptions
}

// NewSeeder builds its own services over store, with the actor taken from
// the context of each call.
func NewSeeder(store docstore.Store, limits service.Limits, opts SeedOptions) *Seeder {
	postRepo := repository.NewPostRepository(store)
	actors := identity.ContextProvider{}
	return &Seeder{
		users:    repository.NewUserRepository(store),
		posts:    service.NewPostService(store, postRepo, repository.NewReportRepository(store), nil, actors, limits),
		comments: service.NewCommentService(store, postRepo, actors, limits),
		factory:  NewFactory(opts.Seed),
		opts:     opts,
	}
}

// Run creates users, then posts, then comments, likes and attach comments.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.opts.Users <= 0 {
		return sum, fmt.Errorf("at least one user is required")
	}

	actors := make([]string, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		id := s.factory.ActorID()
		if _, err := s.users.Upsert(ctx, id, identity.DisplayName(id)); err != nil {
			return sum, fmt.Errorf("seed user: %w", err)
		}
		actors = append(actors, id)
		sum.Users++
	}

	posts := make([]*models.Post, 0, s.opts.Posts)
	for i := 0; i < s.opts.Posts; i++ {
		actx := identity.WithActor(ctx, actors[s.factory.Intn(len(actors))])
		post, err := s.posts.CreatePost(actx, s.factory.PostInput())
		if err != nil {
			return sum, fmt.Errorf("seed post: %w", err)
		}
		posts = append(posts, post)
		sum.Posts++
	}

	for _, post := range posts {
		for n := s.factory.Intn(s.opts.MaxCommentsPerPost + 1); n > 0; n-- {
			actx := identity.WithActor(ctx, actors[s.factory.Intn(len(actors))])
			if _, err := s.comments.AddComment(actx, post.ID, s.factory.CommentBody()); err != nil {
				return sum, fmt.Errorf("seed comment: %w", err)
			}
			sum.Comments++
		}

		likes := min(s.factory.Intn(s.opts.MaxLikesPerPost+1), len(actors))
		start := s.factory.Intn(len(actors))
		for i := 0; i < likes; i++ {
			actor := actors[(start+i)%len(actors)]
			if _, err := s.posts.ToggleLike(ctx, post.ID, actor); err != nil {
				return sum, fmt.Errorf("seed like: %w", err)
			}
			sum.Likes++
		}

		if len(posts) > 1 && s.factory.Chance(s.opts.AttachRatio) {
			child := posts[s.factory.Intn(len(posts))]
			if child.ID == post.ID {
				continue
			}
			actx := identity.WithActor(ctx, actors[s.factory.Intn(len(actors))])
			if _, err := s.comments.AddAttachComment(actx, post.ID, child.ID); err != nil {
				return sum, fmt.Errorf("seed attach comment: %w", err)
			}
			sum.AttachComments++
		}
	}

	observability.Logger.InfoContext(ctx, "seed completed",
		"users", sum.Users,
		"posts", sum.Posts,
		"comments", sum.Comments,
		"attach_comments", sum.AttachComments,
		"likes", sum.Likes,
	)
	return sum, nil
}
