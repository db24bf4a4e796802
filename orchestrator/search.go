package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/common"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/scoring"
	"github.com/rs/zerolog/log"
)

// Search runs a direct keyword search without channel expansion and ranks
// the hits with the composite 0-1000 model.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*Result, error) {
	if req.Keyword == "" {
		return nil, fmt.Errorf("invalid search request: keyword is required")
	}
	if req.Results < 1 {
		req.Results = o.cfg.Results
	}
	if req.RegionCode == "" {
		req.RegionCode = "KR"
	}
	if req.Language == "" {
		req.Language = "ko"
	}
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.finish()

	start := time.Now()
	defer metrics.ObserveStage("search", start)

	result := &Result{
		ScanID:    common.GenerateScanID(),
		Stage:     StageDiscovering,
		StartedAt: o.now(),
	}
	startRemaining := o.pool.Remaining()
	scorer := &scoring.Scorer{Strategy: scoring.DefaultComposite(), Now: o.now}

	log.Info().
		Str("scan_id", result.ScanID).
		Str("keyword", req.Keyword).
		Int("results", req.Results).
		Int("remaining_units", startRemaining).
		Msg("Starting keyword search")

	if startRemaining <= 0 {
		result.Videos = o.simulated(req.Results, req.Keyword, scorer, req.Sort)
		result.Pool = append([]model.VideoRecord(nil), result.Videos...)
		result.Simulated = true
		result.Diagnostic = "No quota remains on any API key. Showing simulated data."
		result.Stage = StageDone
		result.FinishedAt = o.now()
		return result, nil
	}

	ids, exhausted := o.searchVideoIDs(ctx, req)
	result.VideoIDs = ids

	var records []model.VideoRecord
	if ctx.Err() == nil && len(ids) > 0 {
		result.Stage = StageFetchingStats
		var err error
		records, err = o.crawler.FetchVideoStatsBulk(ctx, ids)
		if err != nil && isExhaustion(err) {
			exhausted = true
		}
		if ctx.Err() == nil {
			if err := o.crawler.AttachSubscribers(ctx, records); err != nil && isExhaustion(err) {
				exhausted = true
			}
		}
	}
	for i := range records {
		records[i].Keyword = req.Keyword
	}

	result.Stage = StageScoring
	scored := scorer.Compute(records, scoring.Filter{TimeRange: req.TimeRange, Format: req.Format})
	scored = model.Dedupe(scored)
	scoring.SortBy(scored, req.Sort)
	result.Pool = scored

	display := append([]model.VideoRecord(nil), scored...)
	if len(display) > req.Results {
		display = display[:req.Results]
	}

	switch {
	case ctx.Err() != nil:
		result.Stage = StageCancelled
		result.Diagnostic = "Search cancelled. Partial results are shown."
	case exhausted && len(display) < req.Results:
		missing := req.Results - len(display)
		display = append(display, o.simulated(missing, req.Keyword, scorer, req.Sort)...)
		result.Simulated = true
		result.Diagnostic = fmt.Sprintf("Quota ran out during the search. %d simulated records fill the remaining slots.", missing)
		result.Stage = StageDone
	default:
		result.Stage = StageDone
	}

	result.Videos = display
	result.UnitsUsed = max(0, startRemaining-o.pool.Remaining())
	result.FinishedAt = o.now()

	log.Info().
		Str("scan_id", result.ScanID).
		Str("stage", string(result.Stage)).
		Int("videos", len(result.Videos)).
		Bool("simulated", result.Simulated).
		Int("units_used", result.UnitsUsed).
		Msg("Keyword search finished")

	return result, nil
}

// searchVideoIDs pages through search results until req.Results IDs are
// collected. The second return reports whether quota ran out.
func (o *Orchestrator) searchVideoIDs(ctx context.Context, req SearchRequest) ([]string, bool) {
	opts := client.SearchVideoOptions{
		Order:      "viewCount",
		RegionCode: req.RegionCode,
		Language:   req.Language,
	}
	if req.TimeRange > 0 {
		opts.PublishedAfter = o.now().Add(-req.TimeRange.Duration())
	}

	seen := make(map[string]struct{})
	var ids []string
	for len(ids) < req.Results {
		if ctx.Err() != nil {
			break
		}
		if o.pool.Insufficient(o.cfg.Costs.Search) {
			log.Warn().Int("collected", len(ids)).Msg("Not enough quota for another search page")
			return ids, true
		}

		opts.MaxResults = min(client.MaxBatchSize, req.Results-len(ids))
		page, err := o.api.SearchVideos(ctx, req.Keyword, opts)
		if err != nil {
			if isExhaustion(err) {
				return ids, true
			}
			log.Warn().Err(err).Str("keyword", req.Keyword).Msg("Video search failed")
			break
		}

		for _, id := range page.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		if page.NextPageToken == "" {
			break
		}
		opts.PageToken = page.NextPageToken
	}
	return ids, false
}
