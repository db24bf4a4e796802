// Package youtube implements keyword discovery, upload expansion and
// statistics collection over the YouTube Data API.
package youtube

import (
	"context"
	"errors"

	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
)

// ErrBudgetExhausted reports that a stage stopped early because the pool
// could not afford the next call. Results returned with it are still valid.
var ErrBudgetExhausted = errors.New("quota budget exhausted")

// quotaExhausted reports an API failure after every credential was tried:
// either none was left to select or the last one was out of quota.
func quotaExhausted(err error) bool {
	return errors.Is(err, quota.ErrNoCredential) || errors.Is(err, client.ErrQuotaExceeded)
}

// API defines the Data API operations the crawler needs
type API interface {
	// SearchChannels returns one page of channel IDs for a keyword
	SearchChannels(ctx context.Context, keyword, pageToken string, pageSize int) (client.Page, error)

	// UploadsPlaylistID resolves the uploads playlist of a channel
	UploadsPlaylistID(ctx context.Context, channelID string) (string, error)

	// PlaylistVideoIDs returns one page of video IDs from a playlist
	PlaylistVideoIDs(ctx context.Context, playlistID, pageToken string, pageSize int) (client.Page, error)

	// VideosByIDs fetches details and statistics for up to client.MaxBatchSize videos
	VideosByIDs(ctx context.Context, ids []string) ([]model.VideoRecord, error)

	// ChannelSubscribers fetches subscriber counts for up to client.MaxBatchSize channels
	ChannelSubscribers(ctx context.Context, ids []string) (map[string]int64, error)
}

// Budget tells the crawler whether the credential pool can afford another call
type Budget interface {
	Insufficient(cost int) bool
}

// ProgressFunc receives a human-readable description of the current action
type ProgressFunc func(action string)

// Crawler runs the collection stages of a scan
type Crawler struct {
	api      API
	budget   Budget
	costs    config.CostModel
	pageSize int

	// OnProgress, when set, is called after every page or batch
	OnProgress ProgressFunc
}

// NewCrawler creates a crawler; budget may be nil to disable quota checks
func NewCrawler(api API, budget Budget, costs config.CostModel, pageSize int) *Crawler {
	if pageSize <= 0 || pageSize > client.MaxBatchSize {
		pageSize = client.MaxBatchSize
	}
	return &Crawler{
		api:      api,
		budget:   budget,
		costs:    costs,
		pageSize: pageSize,
	}
}

func (c *Crawler) insufficient(cost int) bool {
	return c.budget != nil && c.budget.Insufficient(cost)
}

func (c *Crawler) progress(action string) {
	if c.OnProgress != nil {
		c.OnProgress(action)
	}
}
