package repository

import (
	"feedsync/internal/docstore"
	"feedsync/internal/models"
)

// OrderedCommentsQuery selects the comments of a post, oldest first.
func OrderedCommentsQuery(postID string) docstore.Query {
	return docstore.NewQuery(CommentsCollection).
		Where("postId", docstore.OpEqual, postID).
		OrderBy("createdAt", docstore.Asc)
}

// CommentsOfPostQuery selects every comment of a post with no ordering, so
// documents lacking createdAt are still found.
func CommentsOfPostQuery(postID string) docstore.Query {
	return docstore.NewQuery(CommentsCollection).
		Where("postId", docstore.OpEqual, postID)
}

// NewCommentFields encodes a comment for creation. Attach fields are only
// written for attach comments; their body is the empty placeholder.
func NewCommentFields(c *models.Comment) docstore.Fields {
	f := docstore.Fields{
		"postId":      c.PostID,
		"type":        string(c.Kind()),
		"body":        "",
		"authorId":    optionalString(c.AuthorID),
		"isAnonymous": c.IsAnonymous,
		"createdAt":   docstore.ServerTimestamp,
	}
	switch content := c.Content.(type) {
	case models.TextContent:
		f["body"] = content.Body
	case models.AttachContent:
		f["attachedPostId"] = content.PostID
		f["attachedTitle"] = content.Title
		f["attachedSnippet"] = content.Snippet
		f["attachedLessons"] = content.Lessons
		f["attachedImageUrl"] = optionalString(content.ImageURL)
	}
	return f
}

// CommentFromSnapshot decodes a comment. Documents without a type field
// predate attach comments and decode as text.
func CommentFromSnapshot(snap *docstore.Snapshot) *models.Comment {
	d := snap.Data
	c := &models.Comment{
		ID:          snap.Ref.ID,
		PostID:      stringField(d, "postId"),
		AuthorID:    stringField(d, "authorId"),
		IsAnonymous: boolField(d, "isAnonymous"),
		CreatedAt:   timestampField(d, "createdAt"),
	}
	if models.CommentKind(stringField(d, "type")) == models.CommentKindAttach {
		c.Content = models.AttachContent{
			PostID:   stringField(d, "attachedPostId"),
			Title:    stringField(d, "attachedTitle"),
			Snippet:  stringField(d, "attachedSnippet"),
			Lessons:  stringField(d, "attachedLessons"),
			ImageURL: stringField(d, "attachedImageUrl"),
		}
	} else {
		c.Content = models.TextContent{Body: stringField(d, "body")}
	}
	return c
}

// CommentsFromSnapshots decodes a query result in order.
func CommentsFromSnapshots(snaps []*docstore.Snapshot) []*models.Comment {
	out := make([]*models.Comment, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, CommentFromSnapshot(s))
	}
	return out
}
