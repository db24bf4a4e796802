// Package orchestrator sequences discovery, expansion, statistics and
// scoring into a single cancellable scan.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/common"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	ytcrawler "github.com/researchaccelerator-hub/youtube-trends/crawler/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/researchaccelerator-hub/youtube-trends/scoring"
	"github.com/researchaccelerator-hub/youtube-trends/synthetic"
	"github.com/researchaccelerator-hub/youtube-trends/worker"
	"github.com/rs/zerolog/log"
)

// maxProbeAttempts bounds how many credentials are probed before giving up
const maxProbeAttempts = 3

// Orchestrator runs scans against the Data API. Only one scan or search
// runs at a time.
type Orchestrator struct {
	api       DataAPI
	pool      CredentialPool
	cfg       *config.PipelineConfig
	crawler   *ytcrawler.Crawler
	generator *synthetic.Generator
	now       func() time.Time

	// OnProgress, when set, receives progress updates
	OnProgress ProgressFunc

	mu        sync.Mutex
	isRunning bool
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithGenerator replaces the synthetic record generator
func WithGenerator(g *synthetic.Generator) Option {
	return func(o *Orchestrator) {
		o.generator = g
	}
}

// WithClock replaces the clock used for scoring
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator over api and pool
func NewOrchestrator(api DataAPI, pool CredentialPool, cfg *config.PipelineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:       api,
		pool:      pool,
		cfg:       cfg,
		crawler:   ytcrawler.NewCrawler(api, pool, cfg.Costs, cfg.PageSize),
		generator: synthetic.NewGenerator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isRunning {
		return fmt.Errorf("a scan is already running")
	}
	o.isRunning = true
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.isRunning = false
	o.mu.Unlock()
}

func (o *Orchestrator) velocityScorer() *scoring.Scorer {
	return &scoring.Scorer{
		Strategy: scoring.VelocityStrategy{Weights: o.cfg.Weights},
		Now:      o.now,
	}
}

// Scan runs the channel pipeline. It always returns a Result, falling back
// to simulated records when no quota is available. Cancelling ctx stops all
// further API calls; whatever was collected is returned with StageCancelled.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan request: %w", err)
	}
	if req.Concurrency < 1 {
		req.Concurrency = o.cfg.Concurrency
	}
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.finish()

	s := &scan{
		o:   o,
		req: req,
		result: &Result{
			ScanID:    common.GenerateScanID(),
			Stage:     StageIdle,
			StartedAt: o.now(),
		},
		stage:          StageIdle,
		seen:           make(map[string]struct{}),
		keywordOf:      make(map[string]string),
		startRemaining: o.pool.Remaining(),
		scorer:         o.velocityScorer(),
	}
	s.result.Budget = EstimateBudget(req, o.cfg.Costs, o.cfg.PageSize)

	o.crawler.OnProgress = s.report
	defer func() { o.crawler.OnProgress = nil }()

	log.Info().
		Str("scan_id", s.result.ScanID).
		Strs("keywords", req.Keywords()).
		Int("tiers", len(req.Tiers)).
		Int("channel_cap", req.ChannelCap).
		Int("remaining_units", s.startRemaining).
		Int("estimated_units", s.result.Budget).
		Msg("Starting scan")

	s.execute(ctx)

	s.result.UnitsUsed = s.unitsUsed()
	s.result.FinishedAt = o.now()

	log.Info().
		Str("scan_id", s.result.ScanID).
		Str("stage", string(s.result.Stage)).
		Int("videos", len(s.result.Videos)).
		Int("pool", len(s.result.Pool)).
		Bool("simulated", s.result.Simulated).
		Int("units_used", s.result.UnitsUsed).
		Msg("Scan finished")

	return s.result, nil
}

// scan holds the mutable state of one Scan call
type scan struct {
	o      *Orchestrator
	req    ScanRequest
	result *Result
	scorer *scoring.Scorer

	startRemaining int

	mu        sync.Mutex
	stage     Stage
	processed int
	total     int
	ids       []string
	seen      map[string]struct{}
	keywordOf map[string]string
	records   []model.VideoRecord
	exhausted bool
}

func (s *scan) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("scan_id", s.result.ScanID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scan panicked, returning partial results")
			s.recoverPartial(r)
		}
	}()

	if s.startRemaining <= 0 {
		s.simulate("No quota remains on any API key. Showing simulated data.")
		return
	}

	if err := s.probe(ctx); err != nil {
		if ctx.Err() != nil {
			s.cancel()
			return
		}
		s.simulate(fmt.Sprintf("No usable API key (%v). Showing simulated data.", err))
		return
	}

	channels, ok := s.discover(ctx)
	if !ok {
		return
	}
	if !s.expand(ctx, channels) {
		return
	}
	if !s.fetchStats(ctx) {
		return
	}

	start := time.Now()
	s.setStage(StageScoring)
	s.assemble(true)
	metrics.ObserveStage(string(StageScoring), start)

	s.setStage(StageDone)
	s.report("Scan complete")
}

func (s *scan) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
	s.result.Stage = stage

	log.Info().
		Str("scan_id", s.result.ScanID).
		Str("stage", string(stage)).
		Msg("Scan stage changed")
}

func (s *scan) unitsUsed() int {
	used := s.startRemaining - s.o.pool.Remaining()
	if used < 0 {
		// the daily reset happened mid-scan
		return 0
	}
	return used
}

func (s *scan) report(action string) {
	percent := 0.0
	if s.result.Budget > 0 {
		percent = min(100, float64(s.unitsUsed())/float64(s.result.Budget)*100)
	}

	s.mu.Lock()
	p := Progress{
		ScanID:     s.result.ScanID,
		Stage:      s.stage,
		Processed:  s.processed,
		Total:      s.total,
		Discovered: len(s.ids),
		Action:     action,
		Percent:    percent,
	}
	s.mu.Unlock()

	log.Debug().
		Str("scan_id", p.ScanID).
		Str("stage", string(p.Stage)).
		Int("processed", p.Processed).
		Int("total", p.Total).
		Int("discovered", p.Discovered).
		Float64("percent", p.Percent).
		Msg(action)

	if s.o.OnProgress != nil {
		s.o.OnProgress(p)
	}
}

func (s *scan) markExhausted(err error) {
	s.mu.Lock()
	first := !s.exhausted
	s.exhausted = true
	s.mu.Unlock()

	if first {
		log.Warn().
			Err(err).
			Str("scan_id", s.result.ScanID).
			Msg("Quota exhausted mid-scan, continuing with collected data")
	}
}

func isExhaustion(err error) bool {
	return errors.Is(err, ytcrawler.ErrBudgetExhausted) ||
		errors.Is(err, quota.ErrNoCredential) ||
		errors.Is(err, client.ErrQuotaExceeded)
}

// probe verifies a credential with a one-unit call before committing to a full run
func (s *scan) probe(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		key, ok := s.o.pool.Select()
		if !ok {
			if lastErr != nil {
				return lastErr
			}
			return quota.ErrNoCredential
		}

		err := s.o.api.Probe(ctx, key)
		if err == nil {
			log.Debug().Str("credential", quota.MaskKey(key)).Msg("Credential probe succeeded")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("Credential probe failed")
	}
	return lastErr
}

func (s *scan) discover(ctx context.Context) (ytcrawler.Seeds, bool) {
	start := time.Now()
	s.setStage(StageDiscovering)
	defer metrics.ObserveStage(string(StageDiscovering), start)

	channelCap := s.req.ChannelCap
	if s.req.IsFullScan() {
		channelCap = 0
	}

	channels, err := s.o.crawler.DiscoverSeedChannels(ctx, s.req.Keywords(), s.req.PerKeywordChannels, channelCap)
	if err != nil {
		if isExhaustion(err) {
			s.markExhausted(err)
		} else {
			log.Warn().Err(err).Msg("Channel discovery failed")
		}
	}
	s.result.Channels = len(channels)

	if ctx.Err() != nil {
		s.cancel()
		return nil, false
	}
	return channels, true
}

func (s *scan) expand(ctx context.Context, channels ytcrawler.Seeds) bool {
	start := time.Now()
	s.setStage(StageExpanding)
	defer metrics.ObserveStage(string(StageExpanding), start)

	s.mu.Lock()
	s.total = len(channels)
	s.mu.Unlock()

	// stopped early when quota runs out, independent of user cancellation
	expandCtx, stop := context.WithCancel(ctx)
	defer stop()

	keywords := channels.Keywords()
	pool := worker.NewPool(s.result.ScanID, s.req.Concurrency)
	stats := pool.Run(expandCtx, channels.IDs(), func(taskCtx context.Context, channelID string) error {
		ids, err := s.o.crawler.ExpandChannel(taskCtx, channelID, s.req.PerChannelVideos)

		s.mu.Lock()
		for _, id := range ids {
			if _, ok := s.seen[id]; ok {
				continue
			}
			s.seen[id] = struct{}{}
			s.keywordOf[id] = keywords[channelID]
			s.ids = append(s.ids, id)
		}
		s.processed++
		processed, total := s.processed, s.total
		s.mu.Unlock()

		if err != nil && isExhaustion(err) {
			s.markExhausted(err)
			stop()
		}

		s.report(fmt.Sprintf("Expanded channel %s (%d/%d)", channelID, processed, total))
		return err
	})

	log.Info().
		Str("scan_id", s.result.ScanID).
		Int("channels", len(channels)).
		Int("succeeded", stats.Success).
		Int("failed", stats.Error).
		Int("skipped", stats.Skipped).
		Int("video_ids", len(s.ids)).
		Msg("Channel expansion finished")

	s.result.VideoIDs = append([]string(nil), s.ids...)

	if ctx.Err() != nil {
		s.cancel()
		return false
	}
	return true
}

func (s *scan) fetchStats(ctx context.Context) bool {
	start := time.Now()
	s.setStage(StageFetchingStats)
	defer metrics.ObserveStage(string(StageFetchingStats), start)

	records, err := s.o.crawler.FetchVideoStatsBulk(ctx, s.ids)
	if err != nil && isExhaustion(err) {
		s.markExhausted(err)
	}

	s.mu.Lock()
	for i := range records {
		records[i].Keyword = s.keywordOf[records[i].ID]
	}
	s.records = records
	s.mu.Unlock()

	if ctx.Err() != nil {
		s.cancel()
		return false
	}
	return true
}

// cancel keeps whatever records were collected, scored locally, without backfill
func (s *scan) cancel() {
	s.setStage(StageCancelled)
	s.assemble(false)
	s.result.Diagnostic = "Scan cancelled. Partial results are shown."
	s.report("Scan cancelled")
}

// assemble scores, de-duplicates, sorts, filters and truncates the collected
// records into the result. With backfill set, a quota shortfall is topped up
// with simulated records.
func (s *scan) assemble(backfill bool) {
	s.mu.Lock()
	records := s.records
	exhausted := s.exhausted
	s.mu.Unlock()

	scored := s.scorer.Compute(records, scoring.Filter{TimeRange: s.req.TimeRange, Format: s.req.Format})
	scored = model.Dedupe(scored)
	scoring.SortBy(scored, s.req.Sort)
	s.result.Pool = scored

	var secondary [][]string
	if len(s.req.Tiers) > 1 {
		secondary = s.req.Tiers[1:]
	}
	display := FilterTitles(scored, secondary)
	if len(display) > s.req.Results {
		display = display[:s.req.Results]
	}

	if backfill && exhausted && len(display) < s.req.Results {
		missing := s.req.Results - len(display)
		display = append(display, s.o.simulated(missing, s.req.Keywords()[0], s.scorer, s.req.Sort)...)
		s.result.Simulated = true
		s.result.Diagnostic = fmt.Sprintf("Quota ran out during the scan. %d simulated records fill the remaining slots.", missing)
	}

	s.result.Videos = display
}

func (s *scan) simulate(reason string) {
	log.Warn().
		Str("scan_id", s.result.ScanID).
		Str("reason", reason).
		Msg("Falling back to simulated data")

	videos := s.o.simulated(s.req.Results, s.req.Keywords()[0], s.scorer, s.req.Sort)
	s.result.Videos = videos
	s.result.Pool = append([]model.VideoRecord(nil), videos...)
	s.result.Simulated = true
	s.result.Diagnostic = reason
	s.setStage(StageDone)
}

// recoverPartial surfaces whatever was collected before a panic
func (s *scan) recoverPartial(r any) {
	s.mu.Lock()
	records := append([]model.VideoRecord(nil), s.records...)
	s.mu.Unlock()

	deduped := model.Dedupe(records)
	s.result.Pool = deduped
	display := append([]model.VideoRecord(nil), deduped...)
	if len(display) > s.req.Results {
		display = display[:s.req.Results]
	}
	s.result.Videos = display
	s.result.Diagnostic = fmt.Sprintf("The scan stopped unexpectedly (%v). Showing the %d records collected before the failure.", r, len(deduped))
}

// simulated generates n scored simulated records
func (o *Orchestrator) simulated(n int, keyword string, scorer *scoring.Scorer, sortKey scoring.SortKey) []model.VideoRecord {
	records := scorer.Compute(o.generator.Generate(n, keyword), scoring.Filter{})
	scoring.SortBy(records, sortKey)
	return records
}

// FilterTitles keeps records whose title matches every tier, where a tier
// matches when the title contains any of its keywords (case-insensitive).
// The returned slice never aliases records.
func FilterTitles(records []model.VideoRecord, tiers [][]string) []model.VideoRecord {
	out := make([]model.VideoRecord, 0, len(records))
	for _, r := range records {
		if titleMatches(r.Title, tiers) {
			out = append(out, r)
		}
	}
	return out
}

func titleMatches(title string, tiers [][]string) bool {
	title = strings.ToLower(title)
	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		matched := false
		for _, keyword := range tier {
			if strings.Contains(title, strings.ToLower(keyword)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
