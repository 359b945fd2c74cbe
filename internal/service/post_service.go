package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedsync/internal/docstore"
	"feedsync/internal/identity"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/repository"
	"feedsync/internal/storage"
	"feedsync/internal/textutil"
	"feedsync/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const anonymousOwner = "anon"

type PostService struct {
	store    docstore.Store
	posts    repository.PostRepository
	reports  repository.ReportRepository
	uploader storage.Uploader
	actors   identity.Provider
	limits   Limits
	now      func() time.Time
}

type CreatePostInput struct {
	Title   string
	Body    string
	Lessons string
	Tags    []string
	// ImageURI is a local file to upload, or empty for a text-only post.
	ImageURI string
}

// DeleteResult reports how far a cascade delete got. It is returned even
// when the delete fails part way, and a repeated call resumes from there.
type DeleteResult struct {
	CommentsDeleted int
	LikesDeleted    int
	Batches         int
	PostDeleted     bool
}

func NewPostService(
	store docstore.Store,
	posts repository.PostRepository,
	reports repository.ReportRepository,
	uploader storage.Uploader,
	actors identity.Provider,
	limits Limits,
) *PostService {
	if actors == nil {
		actors = identity.Static("")
	}
	return &PostService{
		store:    store,
		posts:    posts,
		reports:  reports,
		uploader: uploader,
		actors:   actors,
		limits:   limits.withDefaults(),
		now:      time.Now,
	}
}

// CreatePost validates the input, uploads the image if one was picked and
// writes the post in a single create. The returned post carries a pending
// createdAt.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "post.CreatePost")
	defer span.End()

	valid, err := validation.ValidatePostInput(validation.PostInput{
		Title:   in.Title,
		Body:    in.Body,
		Lessons: in.Lessons,
		Tags:    in.Tags,
	})
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	actorID, _ := s.actors.CurrentActorID(ctx)

	var imageURL string
	if uri := strings.TrimSpace(in.ImageURI); uri != "" {
		if s.uploader == nil {
			return nil, models.NewValidationError("Image upload is not available")
		}
		owner := actorID
		if owner == "" {
			owner = anonymousOwner
		}
		dest := fmt.Sprintf("posts/%s/%d.jpg", owner, s.now().UnixMilli())
		imageURL, err = s.uploader.Upload(ctx, uri, dest)
		if err != nil {
			span.SetError(err)
			return nil, models.NewInternalError(fmt.Errorf("upload post image: %w", err))
		}
	}

	post := &models.Post{
		Title:       valid.Title,
		TitleLower:  textutil.Lower(valid.Title),
		Body:        valid.Body,
		Lessons:     valid.Lessons,
		Tags:        valid.Tags,
		ImageURL:    imageURL,
		AuthorID:    actorID,
		IsAnonymous: true,
		CreatedAt:   models.PendingTimestamp(),
		Status:      models.PostStatusActive,
	}
	id, err := s.posts.Create(ctx, post)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	post.ID = id
	span.AddAttributes(attribute.String("post.id", id))
	return post, nil
}

// ToggleLike flips the like of actorID on postID and keeps likeCount in
// step, all in one transaction. It reports whether the post is liked
// afterwards.
func (s *PostService) ToggleLike(ctx context.Context, postID, actorID string) (bool, error) {
	span, ctx := observability.NewSpan(ctx, "post.ToggleLike", attribute.String("post.id", postID))
	defer span.End()

	if actorID == "" {
		return false, models.NewUnauthorizedError("Sign in to like posts")
	}
	if postID == "" {
		return false, models.NewValidationError("Post is required")
	}
	ctx = observability.WithActorID(ctx, actorID)

	postRef := repository.PostRef(postID)
	likeRef := repository.LikeRef(postID, actorID)

	var liked bool
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		postSnap, err := tx.Get(postRef)
		if err != nil {
			return err
		}
		if !postSnap.Exists {
			return models.NewNotFoundError("Post", postID)
		}
		likeSnap, err := tx.Get(likeRef)
		if err != nil {
			return err
		}

		count := repository.IntField(postSnap.Data, "likeCount")
		if likeSnap.Exists {
			if err := tx.Delete(likeRef); err != nil {
				return err
			}
			liked = false
			return tx.Update(postRef, docstore.Fields{"likeCount": max(0, count-1)})
		}
		if err := tx.Create(likeRef, docstore.Fields{
			"postId":    postID,
			"userId":    actorID,
			"createdAt": docstore.ServerTimestamp,
		}); err != nil {
			return err
		}
		liked = true
		return tx.Update(postRef, docstore.Fields{"likeCount": count + 1})
	})
	if err != nil {
		span.SetError(err)
		if errors.Is(err, docstore.ErrConflict) {
			return false, models.NewConflictError(err)
		}
		return false, err
	}
	span.AddAttributes(attribute.Bool("like.liked", liked))
	return liked, nil
}

// DeletePostAndComments removes every comment of the post and every like
// under it in bounded batches, then the post itself. Batches are atomic on
// their own but not together; on failure the result says how far the
// delete got and calling again finishes the job. Store errors, including
// permission denials, are returned unchanged.
func (s *PostService) DeletePostAndComments(ctx context.Context, postID string) (DeleteResult, error) {
	span, ctx := observability.NewSpan(ctx, "post.DeletePostAndComments", attribute.String("post.id", postID))
	defer span.End()

	var res DeleteResult
	if postID == "" {
		return res, models.NewValidationError("Post is required")
	}

	fail := func(stage string, err error) (DeleteResult, error) {
		span.SetError(err)
		observability.Logger.ErrorContext(ctx, "cascade delete stopped",
			"post_id", postID,
			"stage", stage,
			"comments_deleted", res.CommentsDeleted,
			"likes_deleted", res.LikesDeleted,
			"batches", res.Batches,
			"error", err,
		)
		return res, err
	}

	comments, err := s.store.Query(ctx, repository.CommentsOfPostQuery(postID))
	if err != nil {
		return fail("list comments", err)
	}
	if err := s.deleteInBatches(ctx, comments, "comment", &res, &res.CommentsDeleted); err != nil {
		return fail("delete comments", err)
	}

	likes, err := s.store.Query(ctx, repository.LikesQuery(postID))
	if err != nil {
		return fail("list likes", err)
	}
	if err := s.deleteInBatches(ctx, likes, "like", &res, &res.LikesDeleted); err != nil {
		return fail("delete likes", err)
	}

	if err := s.store.Delete(ctx, repository.PostRef(postID)); err != nil {
		return fail("delete post", err)
	}
	res.PostDeleted = true
	observability.CascadeDocumentsDeleted.WithLabelValues("post").Inc()

	span.AddAttributes(
		attribute.Int("cascade.comments", res.CommentsDeleted),
		attribute.Int("cascade.likes", res.LikesDeleted),
		attribute.Int("cascade.batches", res.Batches),
	)
	observability.Logger.InfoContext(ctx, "post deleted",
		"post_id", postID,
		"comments_deleted", res.CommentsDeleted,
		"likes_deleted", res.LikesDeleted,
		"batches", res.Batches,
	)
	return res, nil
}

func (s *PostService) deleteInBatches(ctx context.Context, snaps []*docstore.Snapshot, kind string, res *DeleteResult, counter *int) error {
	size := s.limits.DeleteBatchSize
	for start := 0; start < len(snaps); start += size {
		end := min(start+size, len(snaps))
		batch := s.store.Batch()
		for _, snap := range snaps[start:end] {
			batch.Delete(snap.Ref)
		}
		if err := batch.Commit(ctx); err != nil {
			return err
		}
		n := end - start
		*counter += n
		res.Batches++
		observability.CascadeBatches.Inc()
		observability.CascadeDocumentsDeleted.WithLabelValues(kind).Add(float64(n))
		observability.Logger.DebugContext(ctx, "cascade batch committed", "kind", kind, "size", n, "batches", res.Batches)
	}
	return nil
}

// ReportPost files a report against postID from the current actor.
func (s *PostService) ReportPost(ctx context.Context, postID, reason string) (string, error) {
	span, ctx := observability.NewSpan(ctx, "post.ReportPost", attribute.String("post.id", postID))
	defer span.End()

	if strings.TrimSpace(postID) == "" {
		return "", models.NewValidationError("Post is required")
	}
	reason, err := validation.ValidateReportReason(reason)
	if err != nil {
		return "", models.NewValidationError(err.Error())
	}
	reporterID, _ := s.actors.CurrentActorID(ctx)

	id, err := s.reports.Create(ctx, &models.Report{
		TargetType: models.ReportTargetPost,
		TargetID:   postID,
		Reason:     reason,
		ReporterID: reporterID,
		CreatedAt:  models.PendingTimestamp(),
		Status:     models.ReportStatusOpen,
	})
	if err != nil {
		span.SetError(err)
		return "", err
	}
	return id, nil
}
