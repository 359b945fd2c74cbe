// Package timefmt renders store timestamps for display.
package timefmt

import (
	"time"

	"feedsync/internal/models"
)

// JustNow is shown for a timestamp the server has not resolved yet.
const JustNow = "방금"

const layout = "2006-01-02 15:04"

// KST is Korea Standard Time. Korea observes no daylight saving.
var KST = time.FixedZone("KST", 9*60*60)

// FormatKST renders ts as "YYYY-MM-DD HH:mm" in Korea Standard Time.
func FormatKST(ts models.Timestamp) string {
	t, ok := ts.Time()
	if !ok {
		return JustNow
	}
	return t.In(KST).Format(layout)
}
