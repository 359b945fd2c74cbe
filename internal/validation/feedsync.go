// Package validation checks user input before anything reaches the store.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"feedsync/internal/textutil"
)

// Input limits, in characters.
const (
	MaxTitleLength   = 50
	MaxBodyLength    = 500
	MaxLessonsLength = 100
	MaxCommentLength = 1000
	MaxReasonLength  = 500
)

var postRefPattern = regexp.MustCompile(`/post/([A-Za-z0-9_-]+)`)
var postIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateCommentBody trims body and checks it holds 1..limit characters.
func ValidateCommentBody(body string, limit int) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", errors.New("comment cannot be empty")
	}
	if n := textutil.Length(trimmed); n > limit {
		return "", fmt.Errorf("comment is too long (%d characters, max %d)", n, limit)
	}
	return trimmed, nil
}

// PostInput is the user-entered part of a new post.
type PostInput struct {
	Title   string
	Body    string
	Lessons string
	Tags    []string
}

// ValidatePostInput trims every field, requires title, body and lessons,
// enforces their length limits and normalizes tags.
func ValidatePostInput(in PostInput) (PostInput, error) {
	out := PostInput{
		Title:   strings.TrimSpace(in.Title),
		Body:    strings.TrimSpace(in.Body),
		Lessons: strings.TrimSpace(in.Lessons),
		Tags:    NormalizeTags(in.Tags),
	}
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"title", out.Title, MaxTitleLength},
		{"body", out.Body, MaxBodyLength},
		{"lessons", out.Lessons, MaxLessonsLength},
	}
	for _, f := range fields {
		if f.value == "" {
			return PostInput{}, fmt.Errorf("%s is required", f.name)
		}
		if textutil.Length(f.value) > f.max {
			return PostInput{}, fmt.Errorf("%s must be at most %d characters", f.name, f.max)
		}
	}
	return out, nil
}

// NormalizeTags trims tags, drops empties and duplicates, and keeps the
// first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParseTags splits a comma-separated tag string.
func ParseTags(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}

// ValidateReportReason trims reason and checks its length.
func ValidateReportReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", errors.New("report reason is required")
	}
	if textutil.Length(trimmed) > MaxReasonLength {
		return "", fmt.Errorf("report reason must be at most %d characters", MaxReasonLength)
	}
	return trimmed, nil
}

// ParsePostReference extracts a post id from a bare id or from any link
// or path containing "/post/{id}".
func ParsePostReference(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("post link or id is required")
	}
	if m := postRefPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if postIDPattern.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("cannot find a post id in %q", s)
}
