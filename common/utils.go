// Package common holds helpers shared by the CLI and the pipeline packages
package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls log output
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // "console" or "json"
	File       string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetupLogging configures the global zerolog logger. Console output goes to
// stderr so that JSON results written to stdout stay parseable.
func SetupLogging(cfg LogConfig) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    positiveOr(cfg.MaxSizeMB, 50),
			MaxBackups: positiveOr(cfg.MaxBackups, 5),
			MaxAge:     positiveOr(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// GenerateScanID returns a unique identifier for a scan. It starts with the
// UTC start time (YYYYMMDDHHMMSS) so IDs sort chronologically.
func GenerateScanID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
}

// ReadKeywordsFromFile reads keywords from a file, one per line.
// It ignores empty lines and lines starting with a '#' character (comments).
func ReadKeywordsFromFile(filename string) ([]string, error) {
	log.Debug().Str("filename", filename).Msg("Reading keywords from file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	var keywords []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			keywords = append(keywords, line)
		}
	}

	log.Debug().Int("keyword_count", len(keywords)).Msg("Keywords read from file")
	return keywords, nil
}

// ParseTiers splits a tier expression such as "시니어,실버;운동,요리" into
// keyword tiers. Tiers are separated by ';' and keywords by ','. Empty
// keywords and empty tiers are dropped.
func ParseTiers(expr string) [][]string {
	var tiers [][]string
	for _, part := range strings.Split(expr, ";") {
		tier := SplitKeywords(part)
		if len(tier) > 0 {
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

// SplitKeywords splits a comma separated list, trimming blanks
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
