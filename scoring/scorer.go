package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
)

// minAgeDays keeps velocity finite for videos published moments ago
const minAgeDays = 1.0 / 24

// Strategy assigns a score to a single record. Implementations may also
// fill the derived metric fields on v.
type Strategy interface {
	Score(v *model.VideoRecord, now time.Time) float64
}

// VelocityStrategy is the channel-pipeline model: view velocity amplified by
// interaction density.
type VelocityStrategy struct {
	Weights config.ScoringWeights
}

// Score computes weight_velocity * velocity * (1 + weight_engagement * engagementRate)
func (s VelocityStrategy) Score(v *model.VideoRecord, now time.Time) float64 {
	age := math.Max(v.AgeDays(now), minAgeDays)
	v.Velocity = float64(v.ViewCount) / age
	v.EngagementRate = engagementRate(v)
	v.GrowthRate = growthRate(v)
	v.FreshnessScore = freshness(v.AgeDays(now))
	return s.Weights.Velocity * v.Velocity * (1 + s.Weights.Engagement*v.EngagementRate)
}

// CompositeStrategy is the 0-1000 point model used by the direct keyword search
type CompositeStrategy struct {
	ShortsBonus      float64
	SimulatedPenalty float64
}

// DefaultComposite returns the composite model with its usual bonus and penalty
func DefaultComposite() CompositeStrategy {
	return CompositeStrategy{ShortsBonus: 50, SimulatedPenalty: 0.5}
}

// Score adds view, engagement, growth and freshness points, applies the
// shorts bonus and simulated penalty, then clamps to [0, 1000].
func (s CompositeStrategy) Score(v *model.VideoRecord, now time.Time) float64 {
	age := v.AgeDays(now)
	v.Velocity = float64(v.ViewCount) / math.Max(age, minAgeDays)
	v.EngagementRate = engagementRate(v)
	v.GrowthRate = growthRate(v)
	v.FreshnessScore = freshness(age)

	score := math.Min(300, 50*math.Log10(float64(v.ViewCount)+1))
	score += math.Min(250, v.EngagementRate*100*25)
	score += math.Min(250, v.GrowthRate)
	score += v.FreshnessScore

	if model.ClassifyFormat(v.DurationSeconds) == model.FormatShorts {
		score += s.ShortsBonus
	}
	if v.IsSimulated && s.SimulatedPenalty > 0 {
		score *= s.SimulatedPenalty
	}
	return math.Max(0, math.Min(1000, score))
}

// freshness is 200 points up to one day old, decaying linearly to 20 at 14 days
func freshness(ageDays float64) float64 {
	switch {
	case ageDays <= 1:
		return 200
	case ageDays >= 14:
		return 20
	default:
		return 200 - (ageDays-1)*(180.0/13.0)
	}
}

// growthRate expects Velocity to be set already. Views per day stand in when
// the channel hides its subscriber count.
func growthRate(v *model.VideoRecord) float64 {
	if v.SubscriberCount > 0 {
		return float64(v.ViewCount) / float64(v.SubscriberCount) * 100
	}
	return v.Velocity
}

func engagementRate(v *model.VideoRecord) float64 {
	views := v.ViewCount
	if views < 1 {
		views = 1
	}
	return float64(v.LikeCount+v.CommentCount) / float64(views)
}

// Scorer applies a Filter and a Strategy to a batch of records
type Scorer struct {
	Strategy Strategy
	Now      func() time.Time
}

// NewScorer creates a scorer with the wall clock
func NewScorer(strategy Strategy) *Scorer {
	return &Scorer{Strategy: strategy, Now: time.Now}
}

// Compute returns the records that pass filter, each annotated with its
// score. Input order is preserved and the input slice is not modified.
func (s *Scorer) Compute(videos []model.VideoRecord, filter Filter) []model.VideoRecord {
	now := s.Now()
	out := make([]model.VideoRecord, 0, len(videos))
	for i := range videos {
		v := videos[i]
		if !filter.Keep(&v, now) {
			continue
		}
		v.Score = s.Strategy.Score(&v, now)
		if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) {
			v.Score = 0
		}
		out = append(out, v)
	}
	return out
}

// SortKey names a result ordering
type SortKey string

const (
	SortScore  SortKey = "score"
	SortViews  SortKey = "views"
	SortLikes  SortKey = "likes"
	SortGrowth SortKey = "growth"
	SortRecent SortKey = "recent"
)

// ParseSortKey validates a user supplied sort mode. Empty means score.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortScore, nil
	case SortScore, SortViews, SortLikes, SortGrowth, SortRecent:
		return SortKey(s), nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// SortBy orders videos descending by key in place. Ties keep their relative order.
func SortBy(videos []model.VideoRecord, key SortKey) {
	var less func(a, b *model.VideoRecord) bool
	switch key {
	case SortViews:
		less = func(a, b *model.VideoRecord) bool { return a.ViewCount > b.ViewCount }
	case SortLikes:
		less = func(a, b *model.VideoRecord) bool { return a.LikeCount > b.LikeCount }
	case SortGrowth:
		less = func(a, b *model.VideoRecord) bool { return a.GrowthRate > b.GrowthRate }
	case SortRecent:
		less = func(a, b *model.VideoRecord) bool { return a.PublishedAt.After(b.PublishedAt) }
	default:
		less = func(a, b *model.VideoRecord) bool { return a.Score > b.Score }
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return less(&videos[i], &videos[j])
	})
}
