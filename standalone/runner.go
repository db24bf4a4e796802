// Package standalone wires the pipeline together for a single CLI run
package standalone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	"github.com/researchaccelerator-hub/youtube-trends/orchestrator"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/rs/zerolog/log"
)

// Services holds the long-lived components of a run
type Services struct {
	Config       *config.PipelineConfig
	Store        state.Store
	Ledger       *quota.Ledger
	Pool         *quota.Pool
	Cache        *state.TTLCache
	Client       *client.YouTubeDataClient
	Orchestrator *orchestrator.Orchestrator
}

// Options tweak how services are built
type Options struct {
	// APIKeys are registered with the pool on startup, in addition to the persisted list
	APIKeys []string

	// Endpoint and HTTPClient override the Data API transport, used by tests
	Endpoint   string
	HTTPClient *http.Client

	// Store replaces the configured backend
	Store state.Store
}

// NewServices opens the state store and builds the ledger, pool, cache,
// client and orchestrator on top of it.
func NewServices(ctx context.Context, cfg *config.PipelineConfig, opts Options) (*Services, error) {
	store := opts.Store
	if store == nil {
		var err error
		store, err = state.NewStore(state.ConfigFromPipeline(cfg.Store))
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
	}

	svc := &Services{Config: cfg, Store: store}

	ledger, err := quota.NewLedger(ctx, quota.OptionsFromConfig(cfg.Quota), quota.NewStorePersistence(store))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	svc.Ledger = ledger

	pool, err := quota.NewPool(ctx, ledger, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load credential pool: %w", err)
	}
	svc.Pool = pool

	for _, key := range opts.APIKeys {
		if err := pool.Add(ctx, key); err != nil {
			log.Warn().Err(err).Str("credential", quota.MaskKey(key)).Msg("Failed to register API key")
		}
	}

	cache, err := state.NewTTLCache(store, cfg.Cache.TTL, cfg.Cache.Capacity)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}
	svc.Cache = cache

	ytClient, err := client.NewYouTubeDataClient(ctx, client.ClientConfig{
		Pool:       pool,
		Cache:      cache,
		Costs:      cfg.Costs,
		Retry:      cfg.Retry,
		Delays:     cfg.Delays,
		Endpoint:   opts.Endpoint,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	svc.Client = ytClient
	svc.Orchestrator = orchestrator.NewOrchestrator(ytClient, pool, cfg)

	log.Info().
		Str("store", cfg.Store.Backend).
		Int("credentials", len(pool.Keys())).
		Int("remaining_units", pool.Remaining()).
		Msg("Services ready")

	return svc, nil
}

// Close persists the ledger and closes the store
func (s *Services) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ledger.Save(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to persist quota ledger on shutdown")
	}
	return s.Store.Close()
}

// RunOptions control a scan or search run
type RunOptions struct {
	Output      string // result file, "" or "-" for stdout
	MetricsAddr string // optional Prometheus listener
}

// StartStandaloneMode runs one scan with SIGINT/SIGTERM cancellation and
// writes the result as JSON. A cancelled scan still writes its partial result.
func StartStandaloneMode(ctx context.Context, svc *Services, req orchestrator.ScanRequest, opts RunOptions, stdout io.Writer) (*orchestrator.Result, error) {
	return run(ctx, svc, opts, stdout, func(ctx context.Context) (*orchestrator.Result, error) {
		return svc.Orchestrator.Scan(ctx, req)
	})
}

// RunSearch runs one direct keyword search the same way
func RunSearch(ctx context.Context, svc *Services, req orchestrator.SearchRequest, opts RunOptions, stdout io.Writer) (*orchestrator.Result, error) {
	return run(ctx, svc, opts, stdout, func(ctx context.Context) (*orchestrator.Result, error) {
		return svc.Orchestrator.Search(ctx, req)
	})
}

func run(ctx context.Context, svc *Services, opts RunOptions, stdout io.Writer, fn func(context.Context) (*orchestrator.Result, error)) (*orchestrator.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		srv := metrics.Serve(opts.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	svc.Orchestrator.OnProgress = logProgress

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if result.Stage == orchestrator.StageCancelled {
		log.Warn().Str("scan_id", result.ScanID).Msg("Interrupted, writing partial results")
	}
	if result.Diagnostic != "" {
		log.Warn().Str("scan_id", result.ScanID).Msg(result.Diagnostic)
	}

	if err := writeOutput(result, opts.Output, stdout); err != nil {
		return result, err
	}
	return result, nil
}

func logProgress(p orchestrator.Progress) {
	log.Info().
		Str("stage", string(p.Stage)).
		Int("processed", p.Processed).
		Int("total", p.Total).
		Int("discovered", p.Discovered).
		Str("percent", fmt.Sprintf("%.1f%%", p.Percent)).
		Msg(p.Action)
}

func writeOutput(result *orchestrator.Result, path string, stdout io.Writer) error {
	if path == "" || path == "-" {
		return WriteResult(stdout, result)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := WriteResult(f, result); err != nil {
		return err
	}

	log.Info().
		Str("file", path).
		Int("videos", len(result.Videos)).
		Int("pool", len(result.Pool)).
		Msg("Results written")
	return nil
}

// WriteResult encodes result as indented JSON
func WriteResult(w io.Writer, result *orchestrator.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
