package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	ytcrawler "github.com/researchaccelerator-hub/youtube-trends/crawler/youtube"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/scoring"
)

// Stage is a state of the scan state machine
type Stage string

const (
	StageIdle          Stage = "idle"
	StageDiscovering   Stage = "discovering"
	StageExpanding     Stage = "expanding"
	StageFetchingStats Stage = "fetchingStats"
	StageScoring       Stage = "scoring"
	StageDone          Stage = "done"
	StageCancelled     Stage = "cancelled"
)

// DataAPI is everything the orchestrator calls on the remote service
type DataAPI interface {
	ytcrawler.API
	SearchVideos(ctx context.Context, keyword string, opts client.SearchVideoOptions) (client.Page, error)
	Probe(ctx context.Context, key string) error
}

// CredentialPool is the view of the credential pool the orchestrator needs
type CredentialPool interface {
	Select() (string, bool)
	Remaining() int
	Insufficient(cost int) bool
}

// Progress is reported after every channel, page or batch
type Progress struct {
	ScanID     string
	Stage      Stage
	Processed  int     // channels expanded so far
	Total      int     // channels to expand
	Discovered int     // unique video IDs collected
	Action     string  // human readable description of the current step
	Percent    float64 // quota units used relative to the estimated budget, 0-100
}

// ProgressFunc receives progress updates. It may be called from several goroutines.
type ProgressFunc func(Progress)

// ScanRequest describes one channel-pipeline scan
type ScanRequest struct {
	// Tiers holds keyword tiers. Tier 0 drives discovery; later tiers only
	// filter the collected pool by title.
	Tiers [][]string

	ChannelCap         int // >= config.NoChannelCap for a full scan
	PerKeywordChannels int
	PerChannelVideos   int // 0 collects every upload
	Results            int
	Concurrency        int

	TimeRange scoring.TimeRange
	Format    model.Format
	Sort      scoring.SortKey
}

// NewScanRequest fills a request for keywords from the pipeline configuration
func NewScanRequest(cfg *config.PipelineConfig, tiers [][]string) (ScanRequest, error) {
	format, err := model.ParseFormat(cfg.Format)
	if err != nil {
		return ScanRequest{}, err
	}
	return ScanRequest{
		Tiers:              tiers,
		ChannelCap:         cfg.ChannelCap,
		PerKeywordChannels: cfg.PerKeywordChannels,
		PerChannelVideos:   cfg.PerChannelVideos,
		Results:            cfg.Results,
		Concurrency:        cfg.Concurrency,
		TimeRange:          scoring.Days(cfg.MaxAgeDays),
		Format:             format,
		Sort:               scoring.SortScore,
	}, nil
}

// Keywords returns the discovery tier
func (r ScanRequest) Keywords() []string {
	if len(r.Tiers) == 0 {
		return nil
	}
	return r.Tiers[0]
}

// IsFullScan reports whether discovery runs without a channel cap
func (r ScanRequest) IsFullScan() bool {
	return r.ChannelCap >= config.NoChannelCap
}

// Validate checks that the request can start a scan
func (r ScanRequest) Validate() error {
	if len(r.Keywords()) == 0 {
		return fmt.Errorf("at least one discovery keyword is required")
	}
	if r.Results < 1 {
		return fmt.Errorf("results must be at least 1")
	}
	if r.ChannelCap < 1 {
		return fmt.Errorf("channel cap must be at least 1")
	}
	if r.PerKeywordChannels < 1 {
		return fmt.Errorf("per-keyword channel limit must be at least 1")
	}
	if r.PerChannelVideos < 0 {
		return fmt.Errorf("per-channel video limit cannot be negative")
	}
	return nil
}

// SearchRequest describes a direct keyword search without channel expansion
type SearchRequest struct {
	Keyword    string
	Results    int
	TimeRange  scoring.TimeRange
	Format     model.Format
	Sort       scoring.SortKey
	RegionCode string
	Language   string
}

// Result is the outcome of a scan or search
type Result struct {
	ScanID string `json:"scan_id"`
	Stage  Stage  `json:"stage"`

	// Videos is the display list: scored, sorted, title-filtered and truncated
	Videos []model.VideoRecord `json:"videos"`

	// Pool is the complete scored and de-duplicated collection before truncation
	Pool []model.VideoRecord `json:"pool"`

	// VideoIDs are the unique upload IDs collected during expansion. They
	// survive cancellation even when statistics were never fetched.
	VideoIDs []string `json:"video_ids,omitempty"`

	Channels   int       `json:"channels"`
	Simulated  bool      `json:"simulated"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	UnitsUsed  int       `json:"units_used"`
	Budget     int       `json:"budget"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
