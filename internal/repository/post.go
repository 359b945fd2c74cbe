package repository

import (
	"context"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
)

// TitlePrefixSentinel closes the half-open range of a prefix query.
const TitlePrefixSentinel = "\uf8ff"

// PostRepository reads and creates posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (string, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
}

type postRepository struct {
	store docstore.Store
}

// NewPostRepository creates a PostRepository backed by store.
func NewPostRepository(store docstore.Store) PostRepository {
	return &postRepository{store: store}
}

// Create writes every field of post, including the derived titleLower, in
// a single document creation. The store assigns createdAt.
func (r *postRepository) Create(ctx context.Context, post *models.Post) (string, error) {
	ref, err := r.store.Add(ctx, PostsCollection, NewPostFields(post))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// GetByID performs a single point read.
func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	snap, err := r.store.Get(ctx, PostRef(id))
	if err != nil {
		return nil, err
	}
	if err := requireExists(snap, "Post"); err != nil {
		return nil, err
	}
	return PostFromSnapshot(snap), nil
}

// NewPostFields encodes a post for creation. Counters start at zero.
func NewPostFields(p *models.Post) docstore.Fields {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	status := p.Status
	if status == "" {
		status = models.PostStatusActive
	}
	return docstore.Fields{
		"title":        p.Title,
		"titleLower":   p.TitleLower,
		"body":         p.Body,
		"lessons":      p.Lessons,
		"tags":         tags,
		"imageUrl":     optionalString(p.ImageURL),
		"authorId":     optionalString(p.AuthorID),
		"isAnonymous":  p.IsAnonymous,
		"likeCount":    0,
		"commentCount": 0,
		"attachCount":  0,
		"createdAt":    docstore.ServerTimestamp,
		"status":       string(status),
	}
}

// PostFromSnapshot decodes an existing post document. Documents written
// before a field existed decode with that field's zero value.
func PostFromSnapshot(snap *docstore.Snapshot) *models.Post {
	d := snap.Data
	status := models.PostStatus(stringField(d, "status"))
	if status == "" {
		status = models.PostStatusActive
	}
	return &models.Post{
		ID:           snap.Ref.ID,
		Title:        stringField(d, "title"),
		TitleLower:   stringField(d, "titleLower"),
		Body:         stringField(d, "body"),
		Lessons:      stringField(d, "lessons"),
		Tags:         stringsField(d, "tags"),
		ImageURL:     stringField(d, "imageUrl"),
		AuthorID:     stringField(d, "authorId"),
		IsAnonymous:  boolField(d, "isAnonymous"),
		LikeCount:    IntField(d, "likeCount"),
		CommentCount: IntField(d, "commentCount"),
		AttachCount:  IntField(d, "attachCount"),
		CreatedAt:    timestampField(d, "createdAt"),
		Status:       status,
	}
}

// PostsFromSnapshots decodes a query result in order.
func PostsFromSnapshots(snaps []*docstore.Snapshot) []*models.Post {
	out := make([]*models.Post, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, PostFromSnapshot(s))
	}
	return out
}

// FeedQuery selects every post, newest first. Visibility is decided on the
// decoded post, since older documents carry no status field.
func FeedQuery() docstore.Query {
	return docstore.NewQuery(PostsCollection).
		OrderBy("createdAt", docstore.Desc)
}

// AuthorPostsQuery selects one actor's posts, newest first.
func AuthorPostsQuery(authorID string, limit int) docstore.Query {
	return docstore.NewQuery(PostsCollection).
		Where("authorId", docstore.OpEqual, authorID).
		OrderBy("createdAt", docstore.Desc).
		Limit(limit)
}

// TitlePrefixQuery selects posts whose titleLower starts with lowerPrefix.
// Posts without a titleLower field never match.
func TitlePrefixQuery(lowerPrefix string, limit int) docstore.Query {
	return docstore.NewQuery(PostsCollection).
		Where("titleLower", docstore.OpGreaterOrEqual, lowerPrefix).
		Where("titleLower", docstore.OpLess, lowerPrefix+TitlePrefixSentinel).
		OrderBy("titleLower", docstore.Asc).
		Limit(limit)
}

// LikesQuery selects every like of a post.
func LikesQuery(postID string) docstore.Query {
	return docstore.NewQuery(LikesCollection(postID))
}
