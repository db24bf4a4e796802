package youtube

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SeedChannel is a discovered channel and the keyword that found it first
type SeedChannel struct {
	ID      string
	Keyword string
}

// Seeds is an ordered list of discovered channels
type Seeds []SeedChannel

// IDs returns the channel IDs in discovery order
func (s Seeds) IDs() []string {
	ids := make([]string, len(s))
	for i, seed := range s {
		ids[i] = seed.ID
	}
	return ids
}

// Keywords maps every channel ID to the keyword that discovered it
func (s Seeds) Keywords() map[string]string {
	out := make(map[string]string, len(s))
	for _, seed := range s {
		out[seed.ID] = seed.Keyword
	}
	return out
}

// DiscoverSeedChannels paginates a channel search for every keyword and
// returns the de-duplicated union of channels in discovery order, each
// tagged with the first keyword that found it. A keyword stops at
// maxPerKeyword new channels or when the search runs out of pages; the
// whole run stops at totalCap channels (0 for no cap), on cancellation or
// when quota runs out.
func (c *Crawler) DiscoverSeedChannels(ctx context.Context, keywords []string, maxPerKeyword, totalCap int) (Seeds, error) {
	seen := make(map[string]struct{})
	channels := make(Seeds, 0)

	capReached := func() bool {
		return totalCap > 0 && len(channels) >= totalCap
	}

	for _, keyword := range keywords {
		if ctx.Err() != nil || capReached() {
			break
		}

		found := 0
		pageToken := ""
		pages := 0

		for {
			if ctx.Err() != nil {
				break
			}

			if c.insufficient(c.costs.Search) {
				log.Warn().
					Str("keyword", keyword).
					Int("channels", len(channels)).
					Msg("Not enough quota for another search, stopping discovery")
				return channels, ErrBudgetExhausted
			}

			page, err := c.api.SearchChannels(ctx, keyword, pageToken, c.pageSize)
			if err != nil {
				if quotaExhausted(err) {
					return channels, fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
				}
				log.Warn().Err(err).Str("keyword", keyword).Int("page", pages).Msg("Channel search failed, skipping keyword")
				break
			}
			if ctx.Err() != nil {
				break
			}
			pages++

			for _, id := range page.IDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				channels = append(channels, SeedChannel{ID: id, Keyword: keyword})
				found++
				if found >= maxPerKeyword || capReached() {
					break
				}
			}

			log.Debug().
				Str("keyword", keyword).
				Int("page", pages).
				Int("keyword_channels", found).
				Int("total_channels", len(channels)).
				Msg("Discovery page processed")
			c.progress(fmt.Sprintf("Discovering channels for %q: %d found", keyword, len(channels)))

			if found >= maxPerKeyword || capReached() || page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}

		log.Info().
			Str("keyword", keyword).
			Int("keyword_channels", found).
			Int("pages", pages).
			Msg("Keyword discovery complete")
	}

	return channels, nil
}
