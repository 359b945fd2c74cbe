package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestLower(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello world", Lower("Hello WORLD"))
	assert.Equal(t, "시험 공부", Lower("시험 공부"))
	assert.Equal(t, Lower("시험"), Lower(norm.NFD.String("시험")))
}

func TestSnippet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     string
		max    int
		want   string
		length int
	}{
		{"short", "abc", 140, "abc", 3},
		{"exact", strings.Repeat("a", 140), 140, strings.Repeat("a", 140), 140},
		{"long", strings.Repeat("a", 141), 140, strings.Repeat("a", 140) + Ellipsis, 141},
		{"multibyte", strings.Repeat("가", 200), 140, strings.Repeat("가", 140) + Ellipsis, 141},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snippet(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.length, Length(got))
		})
	}
}
