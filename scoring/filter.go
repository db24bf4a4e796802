// Package scoring filters video records by recency and format and assigns
// each survivor a trend score.
package scoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
)

// TimeRange is a recency window expressed in whole days
type TimeRange int

// Preset windows offered by the dashboard
const (
	Day       TimeRange = 1
	ThreeDays TimeRange = 3
	Week      TimeRange = 7
	TwoWeeks  TimeRange = 14
)

// Days returns an arbitrary window of n days
func Days(n int) TimeRange {
	return TimeRange(n)
}

// Duration converts the window to a time.Duration
func (r TimeRange) Duration() time.Duration {
	return time.Duration(r) * 24 * time.Hour
}

// String renders the window the way it is accepted by ParseTimeRange
func (r TimeRange) String() string {
	return fmt.Sprintf("%dd", int(r))
}

// ParseTimeRange accepts "1d", "3d", "7d", "14d" or a bare day count
func ParseTimeRange(s string) (TimeRange, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s)), "d")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid time range %q: %w", s, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("time range must be at least one day, got %d", n)
	}
	return TimeRange(n), nil
}

// Filter selects which records are scored. A zero TimeRange keeps every
// publish date and an empty Format keeps both formats.
type Filter struct {
	TimeRange TimeRange
	Format    model.Format
}

// Keep reports whether v passes the filter at time now
func (f Filter) Keep(v *model.VideoRecord, now time.Time) bool {
	if f.TimeRange > 0 && now.Sub(v.PublishedAt) > f.TimeRange.Duration() {
		return false
	}
	if f.Format != "" && model.ClassifyFormat(v.DurationSeconds) != f.Format {
		return false
	}
	return true
}
