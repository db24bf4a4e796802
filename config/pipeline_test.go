package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfig_IsValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000, cfg.Quota.DailyCap)
	assert.Equal(t, 0.98, cfg.Quota.DisableThreshold)
	assert.Equal(t, 100, cfg.Costs.Search)
	assert.Equal(t, 1.0, cfg.Weights.Velocity)
	assert.Equal(t, 3.0, cfg.Weights.Engagement)
}

func TestPipelineConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *PipelineConfig)
		errorContains string
	}{
		{"zero channel cap", func(c *PipelineConfig) { c.ChannelCap = 0 }, "channel_cap"},
		{"negative per channel", func(c *PipelineConfig) { c.PerChannelVideos = -1 }, "per_channel_videos"},
		{"zero results", func(c *PipelineConfig) { c.Results = 0 }, "results"},
		{"too much concurrency", func(c *PipelineConfig) { c.Concurrency = 64 }, "concurrency"},
		{"bad format", func(c *PipelineConfig) { c.Format = "medium" }, "invalid format"},
		{"page size over api max", func(c *PipelineConfig) { c.PageSize = 51 }, "page_size"},
		{"threshold above one", func(c *PipelineConfig) { c.Quota.DisableThreshold = 1.2 }, "disable_threshold"},
		{"warning above disable", func(c *PipelineConfig) { c.Quota.WarningThreshold = 0.99 }, "warning_threshold"},
		{"negative cost", func(c *PipelineConfig) { c.Costs.Videos = -1 }, "costs"},
		{"zero ttl", func(c *PipelineConfig) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"unknown backend", func(c *PipelineConfig) { c.Store.Backend = "redis" }, "invalid store backend"},
		{"sqlite without path", func(c *PipelineConfig) { c.Store.Path = "" }, "store.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("channel_cap", 25)
	v.Set("retry.base_delay", "250ms")
	v.Set("quota.daily_cap", 5000)
	v.Set("store.backend", "memory")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.ChannelCap)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 5000, cfg.Quota.DailyCap)
	assert.Equal(t, "memory", cfg.Store.Backend)
	// untouched keys keep defaults
	assert.Equal(t, 100, cfg.Costs.Search)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL)
}

func TestLoad_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("concurrency", 0)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}
