package service

import (
	"context"
	"strings"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
	"feedsync/internal/repository"
	"feedsync/internal/textutil"
)

// Subscription kinds, used as metric labels.
const (
	kindFeed        = "feed"
	kindPost        = "post"
	kindAuthorPosts = "author_posts"
	kindSearch      = "search"
)

// SubscriptionService turns store listeners into disposable live views.
type SubscriptionService struct {
	store  docstore.Store
	limits Limits
}

func NewSubscriptionService(store docstore.Store, limits Limits) *SubscriptionService {
	return &SubscriptionService{store: store, limits: limits.withDefaults()}
}

// SubscribeFeed streams at most limit visible posts, newest first,
// redelivering the whole list on every change. A limit of zero or less
// uses the configured FeedLimit.
func (s *SubscriptionService) SubscribeFeed(ctx context.Context, limit int, fn func([]*models.Post, error)) *Handle {
	if limit <= 0 {
		limit = s.limits.FeedLimit
	}
	return s.subscribePosts(ctx, kindFeed, repository.FeedQuery(), func(posts []*models.Post) []*models.Post {
		return visiblePosts(posts, limit)
	}, fn)
}

// visiblePosts drops hidden posts, then caps the list at limit.
func visiblePosts(posts []*models.Post, limit int) []*models.Post {
	out := make([]*models.Post, 0, min(len(posts), limit))
	for _, p := range posts {
		if p.Hidden() {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

// SubscribeAuthorPosts streams the posts of one author, newest first.
func (s *SubscriptionService) SubscribeAuthorPosts(ctx context.Context, authorID string, fn func([]*models.Post, error)) (*Handle, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, models.NewValidationError("Author is required")
	}
	return s.subscribePosts(ctx, kindAuthorPosts, repository.AuthorPostsQuery(authorID, s.limits.FeedLimit), nil, fn), nil
}

// SearchByTitlePrefix streams posts whose lowercased title starts with the
// lowercased prefix, ordered by that field. Posts created without the
// derived field are never returned.
func (s *SubscriptionService) SearchByTitlePrefix(ctx context.Context, prefix string, fn func([]*models.Post, error)) (*Handle, error) {
	lower := textutil.Lower(strings.TrimSpace(prefix))
	if lower == "" {
		return nil, models.NewValidationError("Search text is required")
	}
	return s.subscribePosts(ctx, kindSearch, repository.TitlePrefixQuery(lower, s.limits.SearchLimit), nil, fn), nil
}

func (s *SubscriptionService) subscribePosts(ctx context.Context, kind string, q docstore.Query, shape func([]*models.Post) []*models.Post, fn func([]*models.Post, error)) *Handle {
	h, ctx := newHandle(ctx, kind)
	reg := s.store.ListenQuery(ctx, q, func(snaps []*docstore.Snapshot, err error) {
		h.deliver(func() {
			if err != nil {
				fn(nil, err)
				return
			}
			posts := repository.PostsFromSnapshots(snaps)
			if shape != nil {
				posts = shape(posts)
			}
			fn(posts, nil)
		})
	})
	h.setPrimary(reg)
	return h
}

// SubscribePost streams a post together with its comments, oldest first.
// Every change to either is delivered as one (post, comments) pair. While
// the post does not exist, fn receives (nil, nil, nil) and no comment
// listener is kept.
func (s *SubscriptionService) SubscribePost(ctx context.Context, postID string, fn func(*models.Post, []*models.Comment, error)) (*Handle, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, models.NewValidationError("Post is required")
	}
	h, ctx := newHandle(ctx, kindPost)

	// Guarded by h.deliverMu.
	var (
		post          *models.Post
		comments      []*models.Comment
		commentsReady bool
	)

	listenComments := func(gen uint64) docstore.Registration {
		return s.store.ListenQuery(ctx, repository.OrderedCommentsQuery(postID), func(snaps []*docstore.Snapshot, err error) {
			h.deliverChild(gen, func() {
				if err != nil {
					fn(nil, nil, err)
					return
				}
				comments = repository.CommentsFromSnapshots(snaps)
				commentsReady = true
				if post != nil {
					fn(post, comments, nil)
				}
			})
		})
	}

	reg := s.store.ListenDoc(ctx, repository.PostRef(postID), func(snap *docstore.Snapshot, err error) {
		if err != nil {
			h.deliver(func() { fn(nil, nil, err) })
			return
		}
		if !snap.Exists {
			h.clearChild()
			h.deliver(func() {
				post, comments, commentsReady = nil, nil, false
				fn(nil, nil, nil)
			})
			return
		}
		h.ensureChild(postID, listenComments)
		next := repository.PostFromSnapshot(snap)
		h.deliver(func() {
			post = next
			if commentsReady {
				fn(post, comments, nil)
			}
		})
	})
	h.setPrimary(reg)
	return h, nil
}
