package models

// Like records that an actor liked a post. It is keyed by (PostID, ActorID).
type Like struct {
	PostID    string    `json:"postId"`
	ActorID   string    `json:"userId"`
	CreatedAt Timestamp `json:"createdAt"`
}
