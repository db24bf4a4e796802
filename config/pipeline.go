// Package config provides configuration structures for the trends pipeline
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// NoChannelCap is the channel cap sentinel: any value at or above it means "full scan".
const NoChannelCap = 10000

// EnvPrefix is the prefix for environment overrides (TRENDS_CHANNEL_CAP, TRENDS_API_KEYS, ...)
const EnvPrefix = "TRENDS"

// PipelineConfig holds every tunable of a scan
type PipelineConfig struct {
	// Scan shape
	ChannelCap         int    `mapstructure:"channel_cap" yaml:"channel_cap" json:"channel_cap"`                            // Max channels to expand, >= NoChannelCap for no cap
	PerKeywordChannels int    `mapstructure:"per_keyword_channels" yaml:"per_keyword_channels" json:"per_keyword_channels"` // Max channels discovered per keyword
	PerChannelVideos   int    `mapstructure:"per_channel_videos" yaml:"per_channel_videos" json:"per_channel_videos"`       // Max upload IDs per channel, 0 = all
	Results            int    `mapstructure:"results" yaml:"results" json:"results"`                                        // Size of the display-limited result list
	Concurrency        int    `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`                            // Channel expansion workers
	MaxAgeDays         int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`                         // Recency window for scoring
	Format             string `mapstructure:"format" yaml:"format" json:"format"`                                           // "", "shorts" or "long"
	PageSize           int    `mapstructure:"page_size" yaml:"page_size" json:"page_size"`                                  // Page size for paginated list calls

	Quota   QuotaConfig    `mapstructure:"quota" yaml:"quota" json:"quota"`
	Costs   CostModel      `mapstructure:"costs" yaml:"costs" json:"costs"`
	Weights ScoringWeights `mapstructure:"weights" yaml:"weights" json:"weights"`
	Retry   RetryConfig    `mapstructure:"retry" yaml:"retry" json:"retry"`
	Delays  DelayConfig    `mapstructure:"delays" yaml:"delays" json:"delays"`
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache" json:"cache"`
	Store   StoreConfig    `mapstructure:"store" yaml:"store" json:"store"`
}

// QuotaConfig controls the per-credential daily quota accounting
type QuotaConfig struct {
	DailyCap         int     `mapstructure:"daily_cap" yaml:"daily_cap" json:"daily_cap"`
	DisableThreshold float64 `mapstructure:"disable_threshold" yaml:"disable_threshold" json:"disable_threshold"` // Fraction of DailyCap that marks a key limited
	WarningThreshold float64 `mapstructure:"warning_threshold" yaml:"warning_threshold" json:"warning_threshold"` // Display-only warning fraction
	RecoveryHeadroom int     `mapstructure:"recovery_headroom" yaml:"recovery_headroom" json:"recovery_headroom"` // Remaining units needed to auto-recover a key
	ErrorThreshold   int     `mapstructure:"error_threshold" yaml:"error_threshold" json:"error_threshold"`       // Consecutive generic errors before the headroom check
}

// CostModel is the unit cost billed per call, by operation
type CostModel struct {
	Search        int `mapstructure:"search" yaml:"search" json:"search"`
	Channels      int `mapstructure:"channels" yaml:"channels" json:"channels"`
	PlaylistItems int `mapstructure:"playlist_items" yaml:"playlist_items" json:"playlist_items"`
	Videos        int `mapstructure:"videos" yaml:"videos" json:"videos"`
	Probe         int `mapstructure:"probe" yaml:"probe" json:"probe"`
}

// ScoringWeights are the velocity model weights
type ScoringWeights struct {
	Velocity   float64 `mapstructure:"velocity" yaml:"velocity" json:"velocity"`
	Engagement float64 `mapstructure:"engagement" yaml:"engagement" json:"engagement"`
}

// RetryConfig controls the retrying fetch client
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay" json:"base_delay"`
}

// DelayConfig holds the fixed inter-batch delays per operation
type DelayConfig struct {
	Search        time.Duration `mapstructure:"search" yaml:"search" json:"search"`
	Channels      time.Duration `mapstructure:"channels" yaml:"channels" json:"channels"`
	PlaylistItems time.Duration `mapstructure:"playlist_items" yaml:"playlist_items" json:"playlist_items"`
	Videos        time.Duration `mapstructure:"videos" yaml:"videos" json:"videos"`
}

// CacheConfig controls the list-response TTL cache
type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	Capacity int           `mapstructure:"capacity" yaml:"capacity" json:"capacity"` // In-memory entries kept before LRU eviction
}

// StoreConfig selects the durable key-value backend
type StoreConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend" json:"backend"` // "sqlite", "memory" or "dapr"
	Path           string `mapstructure:"path" yaml:"path" json:"path"`          // SQLite database file
	DaprStateStore string `mapstructure:"dapr_state_store" yaml:"dapr_state_store" json:"dapr_state_store"`
	DaprGRPCPort   string `mapstructure:"dapr_grpc_port" yaml:"dapr_grpc_port" json:"dapr_grpc_port"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChannelCap:         200,
		PerKeywordChannels: 50,
		PerChannelVideos:   50,
		Results:            100,
		Concurrency:        6,
		MaxAgeDays:         7,
		Format:             "",
		PageSize:           50,
		Quota: QuotaConfig{
			DailyCap:         10000,
			DisableThreshold: 0.98,
			WarningThreshold: 0.80,
			RecoveryHeadroom: 100,
			ErrorThreshold:   3,
		},
		Costs: CostModel{
			Search:        100,
			Channels:      1,
			PlaylistItems: 1,
			Videos:        1,
			Probe:         1,
		},
		Weights: ScoringWeights{
			Velocity:   1.0,
			Engagement: 3.0,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
		},
		Delays: DelayConfig{
			Search:        200 * time.Millisecond,
			Channels:      50 * time.Millisecond,
			PlaylistItems: 50 * time.Millisecond,
			Videos:        100 * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL:      6 * time.Hour,
			Capacity: 5000,
		},
		Store: StoreConfig{
			Backend:        "sqlite",
			Path:           defaultStorePath(),
			DaprStateStore: "statestore",
			DaprGRPCPort:   "50001",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".youtube-trends", "state.db")
	}
	return filepath.Join(home, ".youtube-trends", "state.db")
}

// Validate checks if the configuration is valid
func (c *PipelineConfig) Validate() error {
	if c.ChannelCap < 1 {
		return fmt.Errorf("channel_cap must be at least 1")
	}

	if c.PerKeywordChannels < 1 {
		return fmt.Errorf("per_keyword_channels must be at least 1")
	}

	if c.PerChannelVideos < 0 {
		return fmt.Errorf("per_channel_videos cannot be negative")
	}

	if c.Results < 1 {
		return fmt.Errorf("results must be at least 1")
	}

	if c.Concurrency < 1 || c.Concurrency > 16 {
		return fmt.Errorf("concurrency must be between 1 and 16")
	}

	if c.MaxAgeDays < 1 {
		return fmt.Errorf("max_age_days must be at least 1")
	}

	if c.Format != "" && c.Format != "shorts" && c.Format != "long" {
		return fmt.Errorf("invalid format '%s', must be one of: shorts, long", c.Format)
	}

	if c.PageSize < 1 || c.PageSize > 50 {
		return fmt.Errorf("page_size must be between 1 and 50")
	}

	// Quota
	if c.Quota.DailyCap < 1 {
		return fmt.Errorf("quota.daily_cap must be at least 1")
	}

	if c.Quota.DisableThreshold <= 0 || c.Quota.DisableThreshold > 1 {
		return fmt.Errorf("quota.disable_threshold must be in (0, 1]")
	}

	if c.Quota.WarningThreshold <= 0 || c.Quota.WarningThreshold > c.Quota.DisableThreshold {
		return fmt.Errorf("quota.warning_threshold must be in (0, disable_threshold]")
	}

	if c.Quota.RecoveryHeadroom < 0 {
		return fmt.Errorf("quota.recovery_headroom cannot be negative")
	}

	if c.Quota.ErrorThreshold < 1 {
		return fmt.Errorf("quota.error_threshold must be at least 1")
	}

	// Costs
	if c.Costs.Search < 0 || c.Costs.Channels < 0 || c.Costs.PlaylistItems < 0 || c.Costs.Videos < 0 || c.Costs.Probe < 0 {
		return fmt.Errorf("costs cannot be negative")
	}

	if c.Weights.Velocity < 0 || c.Weights.Engagement < 0 {
		return fmt.Errorf("weights cannot be negative")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}

	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay cannot be negative")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be at least 1")
	}

	validBackends := map[string]bool{
		"sqlite": true,
		"memory": true,
		"dapr":   true,
	}

	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend '%s', must be one of: sqlite, memory, dapr", c.Store.Backend)
	}

	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty for the sqlite backend")
	}

	if c.Store.Backend == "dapr" && c.Store.DaprStateStore == "" {
		return fmt.Errorf("store.dapr_state_store cannot be empty for the dapr backend")
	}

	return nil
}

// SetDefaults registers every default on v so that config files and
// environment variables only need to override what they change.
func SetDefaults(v *viper.Viper) {
	d := DefaultPipelineConfig()

	v.SetDefault("channel_cap", d.ChannelCap)
	v.SetDefault("per_keyword_channels", d.PerKeywordChannels)
	v.SetDefault("per_channel_videos", d.PerChannelVideos)
	v.SetDefault("results", d.Results)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("max_age_days", d.MaxAgeDays)
	v.SetDefault("format", d.Format)
	v.SetDefault("page_size", d.PageSize)

	v.SetDefault("quota.daily_cap", d.Quota.DailyCap)
	v.SetDefault("quota.disable_threshold", d.Quota.DisableThreshold)
	v.SetDefault("quota.warning_threshold", d.Quota.WarningThreshold)
	v.SetDefault("quota.recovery_headroom", d.Quota.RecoveryHeadroom)
	v.SetDefault("quota.error_threshold", d.Quota.ErrorThreshold)

	v.SetDefault("costs.search", d.Costs.Search)
	v.SetDefault("costs.channels", d.Costs.Channels)
	v.SetDefault("costs.playlist_items", d.Costs.PlaylistItems)
	v.SetDefault("costs.videos", d.Costs.Videos)
	v.SetDefault("costs.probe", d.Costs.Probe)

	v.SetDefault("weights.velocity", d.Weights.Velocity)
	v.SetDefault("weights.engagement", d.Weights.Engagement)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)

	v.SetDefault("delays.search", d.Delays.Search)
	v.SetDefault("delays.channels", d.Delays.Channels)
	v.SetDefault("delays.playlist_items", d.Delays.PlaylistItems)
	v.SetDefault("delays.videos", d.Delays.Videos)

	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.capacity", d.Cache.Capacity)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dapr_state_store", d.Store.DaprStateStore)
	v.SetDefault("store.dapr_grpc_port", d.Store.DaprGRPCPort)
}

// Load decodes a validated PipelineConfig out of v. Defaults are registered first.
func Load(v *viper.Viper) (*PipelineConfig, error) {
	SetDefaults(v)

	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
