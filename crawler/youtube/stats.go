package youtube

import (
	"context"
	"fmt"

	"github.com/researchaccelerator-hub/youtube-trends/client"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/rs/zerolog/log"
)

// FetchVideoStatsBulk fetches records for ids in batches of client.MaxBatchSize.
// A failed batch is skipped; the records of every other batch are returned.
func (c *Crawler) FetchVideoStatsBulk(ctx context.Context, ids []string) ([]model.VideoRecord, error) {
	ids = uniqueIDs(ids)
	records := make([]model.VideoRecord, 0, len(ids))
	batches := chunk(ids, client.MaxBatchSize)

	failed := 0
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		if c.insufficient(c.costs.Videos) {
			log.Warn().Int("batch", i).Int("batches", len(batches)).Msg("Not enough quota for remaining statistics batches")
			return records, ErrBudgetExhausted
		}

		batchRecords, err := c.api.VideosByIDs(ctx, batch)
		if err != nil {
			if quotaExhausted(err) {
				return records, fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
			}
			failed++
			log.Warn().Err(err).Int("batch", i).Int("size", len(batch)).Msg("Statistics batch failed, skipping")
			continue
		}

		records = append(records, batchRecords...)
		c.progress(fmt.Sprintf("Fetching statistics: batch %d/%d", i+1, len(batches)))
	}

	log.Info().
		Int("requested", len(ids)).
		Int("received", len(records)).
		Int("failed_batches", failed).
		Msg("Video statistics fetched")

	return records, nil
}

// AttachSubscribers fills SubscriberCount on records from their channels.
// Failed batches leave the count at zero.
func (c *Crawler) AttachSubscribers(ctx context.Context, records []model.VideoRecord) error {
	channelIDs := make([]string, 0, len(records))
	for _, r := range records {
		if r.ChannelID != "" {
			channelIDs = append(channelIDs, r.ChannelID)
		}
	}
	channelIDs = uniqueIDs(channelIDs)

	subscribers := make(map[string]int64, len(channelIDs))
	for _, batch := range chunk(channelIDs, client.MaxBatchSize) {
		if ctx.Err() != nil {
			break
		}
		if c.insufficient(c.costs.Channels) {
			return ErrBudgetExhausted
		}

		counts, err := c.api.ChannelSubscribers(ctx, batch)
		if err != nil {
			if quotaExhausted(err) {
				return fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
			}
			log.Warn().Err(err).Int("size", len(batch)).Msg("Subscriber lookup failed, skipping batch")
			continue
		}
		for id, n := range counts {
			subscribers[id] = n
		}
	}

	for i := range records {
		if n, ok := subscribers[records[i].ChannelID]; ok {
			records[i].SubscriberCount = n
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
