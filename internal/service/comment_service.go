package service

import (
	"context"
	"errors"
	"strings"

	"feedsync/internal/docstore"
	"feedsync/internal/identity"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/repository"
	"feedsync/internal/textutil"
	"feedsync/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type CommentService struct {
	store  docstore.Store
	posts  repository.PostRepository
	actors identity.Provider
	limits Limits
}

func NewCommentService(
	store docstore.Store,
	posts repository.PostRepository,
	actors identity.Provider,
	limits Limits,
) *CommentService {
	if actors == nil {
		actors = identity.Static("")
	}
	return &CommentService{
		store:  store,
		posts:  posts,
		actors: actors,
		limits: limits.withDefaults(),
	}
}

// AddComment adds a text comment to postID. The body is checked before
// anything is written; the comment and the commentCount increment commit
// together.
func (s *CommentService) AddComment(ctx context.Context, postID, body string) (*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "comment.AddComment", attribute.String("post.id", postID))
	defer span.End()

	body, err := validation.ValidateCommentBody(body, s.limits.MaxCommentLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if strings.TrimSpace(postID) == "" {
		return nil, models.NewValidationError("Post is required")
	}

	comment := s.newComment(ctx, postID, models.TextContent{Body: body})
	if err := s.commit(ctx, comment, docstore.Fields{
		"commentCount": docstore.Increment(1),
	}); err != nil {
		span.SetError(err)
		return nil, err
	}
	return comment, nil
}

// AddAttachComment reads childPostID once and adds an attach comment to
// parentPostID that carries a frozen copy of the child's title, snippet,
// lessons and image. Later edits to the child are not reflected.
func (s *CommentService) AddAttachComment(ctx context.Context, parentPostID, childPostID string) (*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "comment.AddAttachComment",
		attribute.String("post.id", parentPostID),
		attribute.String("attach.post_id", childPostID),
	)
	defer span.End()

	if strings.TrimSpace(parentPostID) == "" || strings.TrimSpace(childPostID) == "" {
		return nil, models.NewValidationError("Both posts are required")
	}
	if parentPostID == childPostID {
		return nil, models.NewValidationError("A post cannot be attached to itself")
	}

	child, err := s.posts.GetByID(ctx, childPostID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	comment := s.newComment(ctx, parentPostID, models.AttachContent{
		PostID:   child.ID,
		Title:    child.Title,
		Snippet:  textutil.Snippet(child.Body, s.limits.SnippetLength),
		Lessons:  child.Lessons,
		ImageURL: child.ImageURL,
	})
	if err := s.commit(ctx, comment, docstore.Fields{
		"commentCount": docstore.Increment(1),
		"attachCount":  docstore.Increment(1),
	}); err != nil {
		span.SetError(err)
		return nil, err
	}
	return comment, nil
}

// AddAttachCommentFromReference resolves a pasted link or id and attaches it.
func (s *CommentService) AddAttachCommentFromReference(ctx context.Context, parentPostID, reference string) (*models.Comment, error) {
	childID, err := validation.ParsePostReference(reference)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.AddAttachComment(ctx, parentPostID, childID)
}

func (s *CommentService) newComment(ctx context.Context, postID string, content models.CommentContent) *models.Comment {
	actorID, _ := s.actors.CurrentActorID(ctx)
	return &models.Comment{
		PostID:      postID,
		AuthorID:    actorID,
		IsAnonymous: true,
		CreatedAt:   models.PendingTimestamp(),
		Content:     content,
	}
}

// commit writes the comment and the parent counter update in one batch.
// A missing parent fails the whole batch.
func (s *CommentService) commit(ctx context.Context, c *models.Comment, parentUpdate docstore.Fields) error {
	ref := s.store.NewRef(repository.CommentsCollection)
	err := s.store.Batch().
		Create(ref, repository.NewCommentFields(c)).
		Update(repository.PostRef(c.PostID), parentUpdate).
		Commit(ctx)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.NewNotFoundError("Post", c.PostID)
	}
	if err != nil {
		return err
	}
	c.ID = ref.ID
	return nil
}
