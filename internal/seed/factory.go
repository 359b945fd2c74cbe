// Package seed fills a document store with demo posts, comments and likes.
// It goes through the public services so seeded data obeys the same rules
// as real traffic. Intended for development and testing only.
package seed

import (
	"fmt"
	"strings"

	"feedsync/internal/service"
	"feedsync/internal/textutil"
	"feedsync/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

var titleTopics = []string{
	"시험", "시험기간", "면접", "이사", "운동", "여행", "첫 직장", "Side project", "Exam", "Deploy",
}

// Factory builds random but valid service inputs.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory creates a Factory. The same seed yields the same sequence.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// PostInput builds a post that passes validation.
func (f *Factory) PostInput() service.CreatePostInput {
	topic := titleTopics[f.faker.IntRange(0, len(titleTopics)-1)]
	title := fmt.Sprintf("%s %s", topic, f.faker.Sentence(3))

	tags := make([]string, 0, 3)
	for i := f.faker.IntRange(0, 3); i > 0; i-- {
		tags = append(tags, strings.ToLower(f.faker.Word()))
	}

	return service.CreatePostInput{
		Title:   clip(title, validation.MaxTitleLength),
		Body:    clip(f.faker.Paragraph(1, 4, 12, " "), validation.MaxBodyLength),
		Lessons: clip(f.faker.Sentence(8), validation.MaxLessonsLength),
		Tags:    tags,
	}
}

// CommentBody builds a comment body that passes validation.
func (f *Factory) CommentBody() string {
	return clip(f.faker.Sentence(f.faker.IntRange(3, 20)), validation.MaxCommentLength)
}

// ActorID builds a new actor id.
func (f *Factory) ActorID() string {
	return f.faker.UUID()
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.IntRange(0, n-1)
}

// Chance reports true with probability p.
func (f *Factory) Chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}

// clip trims s and cuts it to at most limit characters.
func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if textutil.Length(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}
