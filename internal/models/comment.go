package models

import (
	"encoding/json"
	"fmt"
)

// CommentKind discriminates the shape of a comment.
type CommentKind string

const (
	CommentKindText   CommentKind = "text"
	CommentKindAttach CommentKind = "attach"
)

// CommentContent is the payload of a comment: either TextContent or AttachContent.
type CommentContent interface {
	Kind() CommentKind
	isCommentContent()
}

// TextContent is a plain text comment.
type TextContent struct {
	Body string
}

func (TextContent) Kind() CommentKind { return CommentKindText }
func (TextContent) isCommentContent() {}

// AttachContent embeds a frozen copy of another post. PostID stays live for
// navigation; the other fields never change after creation.
type AttachContent struct {
	PostID   string
	Title    string
	Snippet  string
	Lessons  string
	ImageURL string
}

func (AttachContent) Kind() CommentKind { return CommentKindAttach }
func (AttachContent) isCommentContent() {}

// Comment belongs to a post by value (PostID), not by containment.
type Comment struct {
	ID          string
	PostID      string
	AuthorID    string
	IsAnonymous bool
	CreatedAt   Timestamp
	Content     CommentContent
}

// Kind returns the discriminant of the comment's content.
func (c *Comment) Kind() CommentKind {
	if c.Content == nil {
		return CommentKindText
	}
	return c.Content.Kind()
}

// Body returns the text body, or "" for attach comments.
func (c *Comment) Body() string {
	if text, ok := c.Content.(TextContent); ok {
		return text.Body
	}
	return ""
}

type commentJSON struct {
	ID               string      `json:"id"`
	PostID           string      `json:"postId"`
	Type             CommentKind `json:"type"`
	Body             string      `json:"body"`
	AuthorID         string      `json:"authorId,omitempty"`
	IsAnonymous      bool        `json:"isAnonymous"`
	CreatedAt        Timestamp   `json:"createdAt"`
	AttachedPostID   string      `json:"attachedPostId,omitempty"`
	AttachedTitle    string      `json:"attachedTitle,omitempty"`
	AttachedSnippet  string      `json:"attachedSnippet,omitempty"`
	AttachedLessons  string      `json:"attachedLessons,omitempty"`
	AttachedImageURL string      `json:"attachedImageUrl,omitempty"`
}

// MarshalJSON flattens the content into the wire shape shared by both kinds.
func (c Comment) MarshalJSON() ([]byte, error) {
	out := commentJSON{
		ID:          c.ID,
		PostID:      c.PostID,
		AuthorID:    c.AuthorID,
		IsAnonymous: c.IsAnonymous,
		CreatedAt:   c.CreatedAt,
	}
	switch content := c.Content.(type) {
	case nil:
		out.Type = CommentKindText
	case TextContent:
		out.Type = CommentKindText
		out.Body = content.Body
	case AttachContent:
		out.Type = CommentKindAttach
		out.AttachedPostID = content.PostID
		out.AttachedTitle = content.Title
		out.AttachedSnippet = content.Snippet
		out.AttachedLessons = content.Lessons
		out.AttachedImageURL = content.ImageURL
	default:
		return nil, fmt.Errorf("unknown comment content %T", c.Content)
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats a missing type as text.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var in commentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Comment{
		ID:          in.ID,
		PostID:      in.PostID,
		AuthorID:    in.AuthorID,
		IsAnonymous: in.IsAnonymous,
		CreatedAt:   in.CreatedAt,
	}
	switch in.Type {
	case "", CommentKindText:
		c.Content = TextContent{Body: in.Body}
	case CommentKindAttach:
		c.Content = AttachContent{
			PostID:   in.AttachedPostID,
			Title:    in.AttachedTitle,
			Snippet:  in.AttachedSnippet,
			Lessons:  in.AttachedLessons,
			ImageURL: in.AttachedImageURL,
		}
	default:
		return fmt.Errorf("unknown comment type %q", in.Type)
	}
	return nil
}
