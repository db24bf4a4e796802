package youtube

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ExpandChannel resolves the uploads playlist of a channel and collects up
// to maxItems recent video IDs. Missing channels come back as an error
// wrapping client.ErrNotFound so the caller can skip them.
func (c *Crawler) ExpandChannel(ctx context.Context, channelID string, maxItems int) ([]string, error) {
	if c.insufficient(c.costs.Channels) {
		return nil, ErrBudgetExhausted
	}

	playlistID, err := c.api.UploadsPlaylistID(ctx, channelID)
	if err != nil {
		log.Warn().Err(err).Str("channel_id", channelID).Msg("Skipping channel")
		return nil, err
	}
	if playlistID == "" {
		// cancelled
		return nil, nil
	}

	return c.FetchRecentUploads(ctx, playlistID, maxItems)
}

// FetchRecentUploads pages through a playlist collecting video IDs until
// maxItems are gathered (maxItems <= 0 collects every page), the playlist
// ends, the context is cancelled or the budget runs out.
func (c *Crawler) FetchRecentUploads(ctx context.Context, playlistID string, maxItems int) ([]string, error) {
	ids := make([]string, 0)
	pageToken := ""

	for {
		if ctx.Err() != nil {
			return ids, nil
		}

		if c.insufficient(c.costs.PlaylistItems) {
			log.Warn().Str("playlist_id", playlistID).Int("collected", len(ids)).Msg("Not enough quota to continue playlist")
			return ids, ErrBudgetExhausted
		}

		size := c.pageSize
		if maxItems > 0 && maxItems-len(ids) < size {
			size = maxItems - len(ids)
		}

		page, err := c.api.PlaylistVideoIDs(ctx, playlistID, pageToken, size)
		if err != nil {
			return ids, fmt.Errorf("failed to list playlist %s: %w", playlistID, err)
		}

		for _, id := range page.IDs {
			ids = append(ids, id)
			if maxItems > 0 && len(ids) >= maxItems {
				return ids, nil
			}
		}

		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}
