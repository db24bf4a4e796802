// Package youtube contains the canonical YouTube data models shared by the pipeline.
package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ShortsMaxSeconds is the longest duration still classified as short-form content.
const ShortsMaxSeconds = 180

// Format is the duration classification of a video.
type Format string

const (
	// FormatShorts marks videos of ShortsMaxSeconds or less
	FormatShorts Format = "shorts"

	// FormatLong marks everything else
	FormatLong Format = "long"
)

// ClassifyFormat returns FormatShorts for durations up to ShortsMaxSeconds and FormatLong otherwise.
func ClassifyFormat(durationSeconds int64) Format {
	if durationSeconds <= ShortsMaxSeconds {
		return FormatShorts
	}
	return FormatLong
}

// ParseFormat converts user input into a Format. An empty string means no filter.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "":
		return "", nil
	case string(FormatShorts), "short":
		return FormatShorts, nil
	case string(FormatLong):
		return FormatLong, nil
	default:
		return "", fmt.Errorf("unknown format %q, expected shorts or long", s)
	}
}

// VideoRecord is the single canonical shape of a video inside the pipeline.
// Every external data source is normalized into it at the ingestion boundary.
type VideoRecord struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	PublishedAt     time.Time `json:"published_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count"`
	CommentCount    int64     `json:"comment_count"`
	SubscriberCount int64     `json:"subscriber_count,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	Tags            []string  `json:"tags,omitempty"`

	// Derived metrics, filled in by the scoring engine.
	Velocity       float64 `json:"velocity"`
	EngagementRate float64 `json:"engagement_rate"`
	GrowthRate     float64 `json:"growth_rate"`
	FreshnessScore float64 `json:"freshness_score"`
	Score          float64 `json:"score"`

	Format      Format `json:"format"`
	IsSimulated bool   `json:"is_simulated"`
	Keyword     string `json:"keyword,omitempty"`
}

// URL returns the watch URL of the video.
func (v *VideoRecord) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

// AgeDays returns the age of the video in fractional days relative to now.
// Videos with a publish time in the future report zero.
func (v *VideoRecord) AgeDays(now time.Time) float64 {
	age := now.Sub(v.PublishedAt).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// Dedupe collapses records sharing an ID. The surviving record keeps the
// position of the first occurrence and the content of the last one.
func Dedupe(records []VideoRecord) []VideoRecord {
	index := make(map[string]int, len(records))
	out := make([]VideoRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO-8601 durations returned by the Data API
// (e.g. "PT1H2M3S", "P1DT5M") into seconds.
func ParseISODuration(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	multipliers := []int64{86400, 3600, 60, 1}
	var total int64
	for i, mult := range multipliers {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += n * mult
	}
	return total, nil
}
