package client

import (
	"context"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	"golang.org/x/time/rate"
)

// Operation names used for pacing, billing and metrics
const (
	OpSearch        = "search"
	OpChannels      = "channels"
	OpPlaylistItems = "playlist_items"
	OpVideos        = "videos"
	OpProbe         = "probe"
)

// Pacer enforces a fixed minimum delay between consecutive calls of the same operation
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delays   map[string]time.Duration
}

// NewPacer creates a pacer from the configured per-operation delays
func NewPacer(d config.DelayConfig) *Pacer {
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		delays: map[string]time.Duration{
			OpSearch:        d.Search,
			OpChannels:      d.Channels,
			OpPlaylistItems: d.PlaylistItems,
			OpVideos:        d.Videos,
		},
	}
}

// Wait blocks until op may be issued again or ctx is done
func (p *Pacer) Wait(ctx context.Context, op string) error {
	return p.limiter(op).Wait(ctx)
}

func (p *Pacer) limiter(op string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[op]; ok {
		return l
	}

	limit := rate.Inf
	if d := p.delays[op]; d > 0 {
		limit = rate.Every(d)
	}
	l := rate.NewLimiter(limit, 1)
	p.limiters[op] = l
	return l
}
