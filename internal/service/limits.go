package service

import (
	"feedsync/internal/docstore"
	"feedsync/internal/validation"
)

// Limits bounds result sizes and inputs for the services.
type Limits struct {
	FeedLimit        int
	SearchLimit      int
	DeleteBatchSize  int
	MaxCommentLength int
	SnippetLength    int
}

// Defaults used when a limit is left at zero.
const (
	DefaultFeedLimit       = 50
	DefaultSearchLimit     = 20
	DefaultDeleteBatchSize = 450
	DefaultSnippetLength   = 140
)

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		FeedLimit:        DefaultFeedLimit,
		SearchLimit:      DefaultSearchLimit,
		DeleteBatchSize:  DefaultDeleteBatchSize,
		MaxCommentLength: validation.MaxCommentLength,
		SnippetLength:    DefaultSnippetLength,
	}
}

// withDefaults fills zero fields and clamps the delete batch to the store ceiling.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.FeedLimit <= 0 {
		l.FeedLimit = d.FeedLimit
	}
	if l.SearchLimit <= 0 {
		l.SearchLimit = d.SearchLimit
	}
	if l.DeleteBatchSize <= 0 {
		l.DeleteBatchSize = d.DeleteBatchSize
	}
	if l.DeleteBatchSize > docstore.MaxBatchWrites {
		l.DeleteBatchSize = docstore.MaxBatchWrites
	}
	if l.MaxCommentLength <= 0 {
		l.MaxCommentLength = d.MaxCommentLength
	}
	if l.SnippetLength <= 0 {
		l.SnippetLength = d.SnippetLength
	}
	return l
}
