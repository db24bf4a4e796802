// Package main provides the youtube-trends CLI entry point.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/researchaccelerator-hub/youtube-trends/common"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/orchestrator"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/researchaccelerator-hub/youtube-trends/scoring"
	"github.com/researchaccelerator-hub/youtube-trends/standalone"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the viper instance shared by every subcommand
type app struct {
	v          *viper.Viper
	configFile string
}

// newRootCmd creates the root command for the trends CLI.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "youtube-trends",
		Short:        "Find trending videos for senior Korean audiences",
		Long:         "youtube-trends discovers channels by keyword, expands their uploads and ranks recent videos while spreading quota across several API keys.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.SetVersionTemplate("youtube-trends version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default trends.yaml in . or ~/.youtube-trends)")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console or json)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.String("store", "", "State backend (sqlite, memory or dapr)")
	pf.String("store-path", "", "SQLite database file")
	pf.String("api-keys", "", "Comma separated API keys to register")

	rootCmd.AddCommand(newScanCmd(a))
	rootCmd.AddCommand(newSearchCmd(a))
	rootCmd.AddCommand(newKeysCmd(a))
	rootCmd.AddCommand(newQuotaCmd(a))

	return rootCmd
}

// setup loads .env, the config file and the environment, then configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	v := a.v
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
	} else {
		v.SetConfigName("trends")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".youtube-trends"))
		}
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	pf := cmd.Flags()
	if err := bindFlags(v, pf, map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"log.file":      "log-file",
		"store.backend": "store",
		"store.path":    "store-path",
		"api_keys":      "api-keys",
	}); err != nil {
		return err
	}

	return common.SetupLogging(common.LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		File:   v.GetString("log.file"),
	})
}

// bindFlags binds config keys to flags that exist on the command
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig decodes the pipeline configuration after flags are bound
func (a *app) loadConfig() (*config.PipelineConfig, error) {
	return config.Load(a.v)
}

// openServices builds the pipeline services, registering keys from the environment
func (a *app) openServices(cmd *cobra.Command) (*standalone.Services, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return standalone.NewServices(cmd.Context(), cfg, standalone.Options{
		APIKeys: common.SplitKeywords(a.v.GetString("api_keys")),
	})
}

// resolveTiers picks the keyword tiers: --tiers wins, then --keywords and
// --keywords-file, then the configured keyword list, then the defaults.
func resolveTiers(tiersExpr, keywords, keywordsFile string, configured []string) ([][]string, error) {
	if tiersExpr != "" {
		tiers := common.ParseTiers(tiersExpr)
		if len(tiers) == 0 {
			return nil, fmt.Errorf("--tiers did not contain any keyword")
		}
		return tiers, nil
	}

	primary := common.SplitKeywords(keywords)
	if keywordsFile != "" {
		fromFile, err := common.ReadKeywordsFromFile(keywordsFile)
		if err != nil {
			return nil, err
		}
		primary = append(primary, fromFile...)
	}
	if len(primary) == 0 {
		primary = configured
	}
	if len(primary) == 0 {
		primary = config.DefaultKeywords
	}
	return [][]string{primary}, nil
}

// newScanCmd creates the scan subcommand.
func newScanCmd(a *app) *cobra.Command {
	var keywords, keywordsFile, tiersExpr, days, sortKey, output, metricsAddr string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a channel-expansion trend scan",
		Long:  "Discover channels for the keywords, collect their recent uploads, fetch statistics and rank the videos.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(a.v, cmd.Flags(), map[string]string{
				"channel_cap":          "channels",
				"per_keyword_channels": "per-keyword",
				"per_channel_videos":   "per-channel",
				"results":              "results",
				"concurrency":          "concurrency",
				"format":               "format",
			}); err != nil {
				return err
			}

			tiers, err := resolveTiers(tiersExpr, keywords, keywordsFile, a.v.GetStringSlice("keywords"))
			if err != nil {
				return err
			}

			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			req, err := orchestrator.NewScanRequest(svc.Config, tiers)
			if err != nil {
				return err
			}
			if days != "" {
				if req.TimeRange, err = scoring.ParseTimeRange(days); err != nil {
					return err
				}
			}
			if req.Sort, err = scoring.ParseSortKey(sortKey); err != nil {
				return err
			}

			_, err = standalone.StartStandaloneMode(cmd.Context(), svc, req, standalone.RunOptions{
				Output:      output,
				MetricsAddr: metricsAddr,
			}, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&keywords, "keywords", "k", "", "Comma separated discovery keywords")
	f.StringVar(&keywordsFile, "keywords-file", "", "File with one discovery keyword per line")
	f.StringVar(&tiersExpr, "tiers", "", "Keyword tiers, e.g. \"시니어,실버;운동,요리\"; later tiers filter titles")
	f.Int("channels", 200, fmt.Sprintf("Max channels to expand, %d or more for a full scan", config.NoChannelCap))
	f.Int("per-keyword", 50, "Max channels discovered per keyword")
	f.Int("per-channel", 50, "Max uploads collected per channel, 0 for all")
	f.IntP("results", "n", 100, "Number of videos to show")
	f.Int("concurrency", 6, "Channel expansion workers")
	f.String("format", "", "Video format (shorts or long)")
	f.StringVarP(&days, "days", "d", "", "Recency window in days (1, 3, 7 or 14)")
	f.StringVarP(&sortKey, "sort", "s", "", "Sort by score, views, likes, growth or recent")
	f.StringVarP(&output, "output", "o", "", "Write results to this JSON file instead of stdout")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the scan")

	return cmd
}

// newSearchCmd creates the search subcommand.
func newSearchCmd(a *app) *cobra.Command {
	var keyword, days, format, sortKey, output, region, language string
	var results int

	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Rank the most viewed videos for one keyword",
		Long:  "Search videos directly for a keyword and rank them with the 0-1000 composite score.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				keyword = args[0]
			}
			if strings.TrimSpace(keyword) == "" {
				return fmt.Errorf("a keyword is required")
			}

			req := orchestrator.SearchRequest{
				Keyword:    strings.TrimSpace(keyword),
				Results:    results,
				RegionCode: region,
				Language:   language,
			}
			var err error
			if days != "" {
				if req.TimeRange, err = scoring.ParseTimeRange(days); err != nil {
					return err
				}
			}
			if req.Format, err = model.ParseFormat(format); err != nil {
				return err
			}
			if req.Sort, err = scoring.ParseSortKey(sortKey); err != nil {
				return err
			}

			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			_, err = standalone.RunSearch(cmd.Context(), svc, req, standalone.RunOptions{Output: output}, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&keyword, "keyword", "k", "", "Keyword to search")
	f.IntVarP(&results, "results", "n", 50, "Number of videos to show")
	f.StringVarP(&days, "days", "d", "", "Only videos published within this many days")
	f.StringVar(&format, "format", "", "Video format (shorts or long)")
	f.StringVarP(&sortKey, "sort", "s", "", "Sort by score, views, likes, growth or recent")
	f.StringVarP(&output, "output", "o", "", "Write results to this JSON file instead of stdout")
	f.StringVar(&region, "region", "KR", "Region code")
	f.StringVar(&language, "language", "ko", "Relevance language")

	return cmd
}

// newKeysCmd creates the keys subcommand.
func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the API key pool",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <key>...",
		Short: "Register one or more API keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, key := range args {
				if err := svc.Pool.Add(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", quota.MaskKey(key))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every key with its usage and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			return printKeys(cmd, svc.Pool, svc.Config.Quota.DailyCap)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <key>",
		Short: "Unregister an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Pool.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", quota.MaskKey(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <key>",
		Short: "Force an API key back to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			svc.Pool.ResetCredential(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", quota.MaskKey(args[0]))
			return nil
		},
	})

	return cmd
}

func printKeys(cmd *cobra.Command, pool *quota.Pool, dailyCap int) error {
	keys := pool.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys registered. Add one with: youtube-trends keys add <key>")
		return nil
	}

	ledger := pool.Ledger()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUSED\tREMAINING\tSTATUS\tERRORS\tWARNING")
	for _, key := range keys {
		usage, _ := ledger.Usage(key)
		warning := ""
		if ledger.Warning(key) {
			warning = "high usage"
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%d\t%s\t%d\t%s\n",
			quota.MaskKey(key), usage.Used, dailyCap, ledger.Remaining(key), ledger.EffectiveStatus(key), usage.Errors, warning)
	}
	return w.Flush()
}

// newQuotaCmd creates the quota subcommand.
func newQuotaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Print aggregate quota usage as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			stats := svc.Ledger.Stats()
			log.Debug().Int("remaining", stats.Remaining).Msg("Quota stats loaded")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
