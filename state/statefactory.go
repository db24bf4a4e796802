package state

import (
	"fmt"

	"github.com/researchaccelerator-hub/youtube-trends/config"
)

// NewStore returns a store implementation based on the configuration
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "dapr":
		daprCfg := DaprConfig{}
		if cfg.DaprConfig != nil {
			daprCfg = *cfg.DaprConfig
		}
		return NewDaprStore(daprCfg)
	case "sqlite", "":
		if cfg.SQLiteConfig == nil {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStore(cfg.SQLiteConfig.Path)
	default:
		return nil, fmt.Errorf("unknown state backend: %s", cfg.Backend)
	}
}

// ConfigFromPipeline maps the pipeline store settings onto a state Config
func ConfigFromPipeline(sc config.StoreConfig) Config {
	return Config{
		Backend:      sc.Backend,
		SQLiteConfig: &SQLiteConfig{Path: sc.Path},
		DaprConfig: &DaprConfig{
			StateStoreName: sc.DaprStateStore,
			GRPCPort:       sc.DaprGRPCPort,
		},
	}
}
