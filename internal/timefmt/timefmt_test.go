package timefmt

import (
	"testing"
	"time"

	"feedsync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatKST(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 12, 31, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-01 00:30", FormatKST(models.ResolvedAt(at)))
	assert.Equal(t, JustNow, FormatKST(models.PendingTimestamp()))
}
