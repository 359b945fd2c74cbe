package models

// PostStatus is the moderation state of a post.
type PostStatus string

const (
	PostStatusActive PostStatus = "active"
	PostStatusHidden PostStatus = "hidden"
)

// Post is a feed entry. LikeCount, CommentCount and AttachCount are
// denormalized aggregates maintained by the like toggle and comment writers.
type Post struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TitleLower   string     `json:"titleLower,omitempty"`
	Body         string     `json:"body"`
	Lessons      string     `json:"lessons"`
	Tags         []string   `json:"tags"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	AuthorID     string     `json:"authorId,omitempty"`
	IsAnonymous  bool       `json:"isAnonymous"`
	LikeCount    int64      `json:"likeCount"`
	CommentCount int64      `json:"commentCount"`
	AttachCount  int64      `json:"attachCount"`
	CreatedAt    Timestamp  `json:"createdAt"`
	Status       PostStatus `json:"status"`
}

// Hidden reports whether the post was hidden by moderation.
func (p *Post) Hidden() bool {
	return p.Status == PostStatusHidden
}
