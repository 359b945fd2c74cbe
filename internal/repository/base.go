// Package repository maps domain models onto document store collections.
package repository

import (
	"time"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
)

// Collection names.
const (
	PostsCollection    = "posts"
	CommentsCollection = "comments"
	ReportsCollection  = "reports"
	UsersCollection    = "users"
)

// LikesCollection is the like subcollection owned by a post.
func LikesCollection(postID string) string {
	return PostsCollection + "/" + postID + "/likes"
}

func PostRef(id string) docstore.Ref {
	return docstore.Ref{Collection: PostsCollection, ID: id}
}

func CommentRef(id string) docstore.Ref {
	return docstore.Ref{Collection: CommentsCollection, ID: id}
}

// LikeRef is keyed by actor, so an actor holds at most one like per post.
func LikeRef(postID, actorID string) docstore.Ref {
	return docstore.Ref{Collection: LikesCollection(postID), ID: actorID}
}

func UserRef(id string) docstore.Ref {
	return docstore.Ref{Collection: UsersCollection, ID: id}
}

func stringField(data docstore.Fields, key string) string {
	s, _ := data[key].(string)
	return s
}

func boolField(data docstore.Fields, key string) bool {
	b, _ := data[key].(bool)
	return b
}

// IntField reads a numeric field as int64. Missing or non-numeric values read as zero.
func IntField(data docstore.Fields, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func stringsField(data docstore.Fields, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timestampField(data docstore.Fields, key string) models.Timestamp {
	if t, ok := data[key].(time.Time); ok {
		return models.ResolvedAt(t)
	}
	return models.PendingTimestamp()
}

// optionalString stores "" as null.
func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireExists(snap *docstore.Snapshot, resource string) error {
	if snap == nil || !snap.Exists {
		id := ""
		if snap != nil {
			id = snap.Ref.ID
		}
		return models.NewNotFoundError(resource, id)
	}
	return nil
}
