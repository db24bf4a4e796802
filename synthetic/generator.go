// Package synthetic produces plausible senior-audience video records used
// when no quota is left to fetch real ones. Every record is flagged simulated.
package synthetic

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/rs/zerolog/log"
)

// shortsRatio is the share of generated records classified as shorts
const shortsRatio = 0.2

// Generator creates simulated video records. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator returns a generator seeded from the runtime's random source
func NewGenerator() *Generator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64())
}

// NewSeededGenerator returns a deterministic generator, used by tests
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed1, seed2)),
		now: time.Now,
	}
}

// WithClock replaces the clock used for publish timestamps
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate returns n simulated records. When keyword belongs to a known topic
// only that topic's templates are used, otherwise every topic is drawn from.
func (g *Generator) Generate(n int, keyword string) []model.VideoRecord {
	if n <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pool := templatesFor(config.CategoryOf(keyword))
	now := g.now()
	records := make([]model.VideoRecord, 0, n)

	for i := 0; i < n; i++ {
		t := pool[g.rng.IntN(len(pool))]
		views := g.views()
		channel := t.channels[g.rng.IntN(len(t.channels))]

		records = append(records, model.VideoRecord{
			ID:              g.videoID(),
			Title:           t.titles[g.rng.IntN(len(t.titles))],
			ChannelID:       "sim-" + channel,
			ChannelTitle:    channel,
			PublishedAt:     now.Add(-time.Duration(g.rng.IntN(72)+1) * time.Hour),
			DurationSeconds: g.duration(),
			ViewCount:       views,
			LikeCount:       int64(float64(views) * (g.rng.Float64()*0.08 + 0.02)),
			CommentCount:    int64(float64(views) * (g.rng.Float64()*0.003 + 0.001)),
			Thumbnail:       fmt.Sprintf("https://via.placeholder.com/480x270/%s?text=%s", t.color, t.label),
			Tags:            append([]string(nil), t.tags...),
			IsSimulated:     true,
			Keyword:         keyword,
		})
		records[i].Format = model.ClassifyFormat(records[i].DurationSeconds)
	}

	log.Debug().
		Int("count", n).
		Str("keyword", keyword).
		Msg("Generated simulated records")

	return records
}

func templatesFor(category string) []template {
	if category == "" {
		return templates
	}
	for _, t := range templates {
		if t.category == category {
			return []template{t}
		}
	}
	return templates
}

func (g *Generator) views() int64 {
	roll := g.rng.IntN(100)
	cumulative := 0
	for _, band := range viewBands {
		cumulative += band.weight
		if roll < cumulative {
			return band.min + g.rng.Int64N(band.max-band.min)
		}
	}
	return 50000
}

// duration is 3-28 minutes for long videos and 15-180 seconds for shorts
func (g *Generator) duration() int64 {
	if g.rng.Float64() < shortsRatio {
		return int64(g.rng.IntN(model.ShortsMaxSeconds-14) + 15)
	}
	return int64((g.rng.IntN(25)+3)*60 + g.rng.IntN(60))
}

func (g *Generator) videoID() string {
	var b strings.Builder
	b.Grow(11)
	for i := 0; i < 11; i++ {
		b.WriteByte(idAlphabet[g.rng.IntN(len(idAlphabet))])
	}
	return b.String()
}
