package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

// MaxBatchSize is the most IDs a single videos.list or channels.list call accepts
const MaxBatchSize = 50

// CredentialPool is the part of quota.Pool the client depends on
type CredentialPool interface {
	Select() (string, bool)
	ReportError(id string, err error)
	RecordUsage(id string, units int)
	Keys() []string
}

// Page is one page of IDs from a paginated listing
type Page struct {
	IDs           []string `json:"ids"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// SearchVideoOptions narrow a direct video search
type SearchVideoOptions struct {
	MaxResults     int
	PageToken      string
	PublishedAfter time.Time
	Order          string // "viewCount" when empty
	Duration       string // "any", "short", "medium" or "long"
	RegionCode     string
	Language       string
}

// ClientConfig wires the client to its collaborators
type ClientConfig struct {
	Pool       CredentialPool
	Cache      *state.TTLCache // optional
	Costs      config.CostModel
	Retry      config.RetryConfig
	Delays     config.DelayConfig
	Endpoint   string       // overrides the API base URL
	HTTPClient *http.Client // defaults to a client with a 30s timeout
}

// YouTubeDataClient calls the YouTube Data API v3, rotating credentials
// from the pool and billing every call to the ledger.
type YouTubeDataClient struct {
	service *ytapi.Service
	pool    CredentialPool
	cache   *state.TTLCache
	fetcher *Fetcher
	pacer   *Pacer
	costs   config.CostModel
}

type uploadsEntry struct {
	PlaylistID string `json:"playlist_id"`
	Missing    bool   `json:"missing"`
}

// NewYouTubeDataClient creates a new YouTube data client
func NewYouTubeDataClient(ctx context.Context, cfg ClientConfig) (*YouTubeDataClient, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("credential pool is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	log.Info().Msg("Connecting to YouTube API")

	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create YouTube service")
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &YouTubeDataClient{
		service: service,
		pool:    cfg.Pool,
		cache:   cfg.Cache,
		fetcher: NewFetcher(cfg.Pool, cfg.Retry),
		pacer:   NewPacer(cfg.Delays),
		costs:   cfg.Costs,
	}, nil
}

// Costs returns the unit cost model the client bills with
func (c *YouTubeDataClient) Costs() config.CostModel {
	return c.costs
}

// invoke paces op, selects a credential and runs fn through the fetcher.
// Quota and authentication failures are reported to the pool and the call
// moves on to the next credential; other failures are returned.
func invoke[T any](ctx context.Context, c *YouTubeDataClient, op string, cost int, fn func(ctx context.Context, key string) (T, error)) (T, error) {
	var zero T

	attempts := max(1, len(c.pool.Keys()))
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.pacer.Wait(ctx, op); err != nil {
			if ctx.Err() != nil {
				return zero, nil
			}
			return zero, err
		}

		key, ok := c.pool.Select()
		if !ok {
			return zero, quota.ErrNoCredential
		}

		out, err := Fetch(ctx, c.fetcher, key, c.fetcher.Options(op, cost), func(ctx context.Context) (T, error) {
			return fn(ctx, key)
		})
		if err == nil {
			return out, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return zero, err
		}

		switch {
		case apiErr.IsQuota(), apiErr.IsAuth():
			c.pool.ReportError(key, err)
			log.Warn().
				Str("op", op).
				Str("credential", quota.MaskKey(key)).
				Int("status", apiErr.Status).
				Str("reason", apiErr.Reason).
				Msg("Credential rejected, rotating")
			continue
		case apiErr.IsTransient():
			c.pool.ReportError(key, err)
		}
		return zero, err
	}
	return zero, lastErr
}

func keyParam(key string) googleapi.CallOption {
	return googleapi.QueryParameter("key", key)
}

// SearchChannels returns one page of channel IDs matching keyword
func (c *YouTubeDataClient) SearchChannels(ctx context.Context, keyword, pageToken string, pageSize int) (Page, error) {
	cacheKey := state.Key{Op: "search_channels", ID: keyword, Extra: fmt.Sprintf("%s:%d", pageToken, pageSize)}
	var cached Page
	if c.cache != nil && c.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	page, err := invoke(ctx, c, OpSearch, c.costs.Search, func(ctx context.Context, key string) (Page, error) {
		call := c.service.Search.List([]string{"snippet"}).
			Q(keyword).
			Type("channel").
			MaxResults(int64(pageSize)).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do(keyParam(key))
		if err != nil {
			return Page{}, err
		}

		out := Page{NextPageToken: response.NextPageToken}
		for _, item := range response.Items {
			switch {
			case item.Id != nil && item.Id.ChannelId != "":
				out.IDs = append(out.IDs, item.Id.ChannelId)
			case item.Snippet != nil && item.Snippet.ChannelId != "":
				out.IDs = append(out.IDs, item.Snippet.ChannelId)
			}
		}
		return out, nil
	})
	if err != nil || ctx.Err() != nil {
		return Page{}, err
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, page)
	}
	return page, nil
}

// SearchVideos returns one page of video IDs matching keyword
func (c *YouTubeDataClient) SearchVideos(ctx context.Context, keyword string, opts SearchVideoOptions) (Page, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > MaxBatchSize {
		maxResults = MaxBatchSize
	}
	order := opts.Order
	if order == "" {
		order = "viewCount"
	}

	return invoke(ctx, c, OpSearch, c.costs.Search, func(ctx context.Context, key string) (Page, error) {
		call := c.service.Search.List([]string{"snippet"}).
			Q(keyword).
			Type("video").
			Order(order).
			MaxResults(int64(maxResults)).
			Context(ctx)
		if opts.PageToken != "" {
			call = call.PageToken(opts.PageToken)
		}
		if !opts.PublishedAfter.IsZero() {
			call = call.PublishedAfter(opts.PublishedAfter.UTC().Format(time.RFC3339))
		}
		if opts.Duration != "" {
			call = call.VideoDuration(opts.Duration)
		}
		if opts.RegionCode != "" {
			call = call.RegionCode(opts.RegionCode)
		}
		if opts.Language != "" {
			call = call.RelevanceLanguage(opts.Language)
		}

		response, err := call.Do(keyParam(key))
		if err != nil {
			return Page{}, err
		}

		out := Page{NextPageToken: response.NextPageToken}
		for _, item := range response.Items {
			if item.Id != nil && item.Id.VideoId != "" {
				out.IDs = append(out.IDs, item.Id.VideoId)
			}
		}
		return out, nil
	})
}

// UploadsPlaylistID resolves the uploads playlist of a channel. Missing or
// inaccessible channels are cached as negative results and reported as ErrNotFound.
func (c *YouTubeDataClient) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	cacheKey := state.Key{Op: "uploads", ID: channelID}
	var cached uploadsEntry
	if c.cache != nil && c.cache.GetJSON(ctx, cacheKey, &cached) {
		if cached.Missing {
			return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
		}
		return cached.PlaylistID, nil
	}

	playlistID, err := invoke(ctx, c, OpChannels, c.costs.Channels, func(ctx context.Context, key string) (string, error) {
		response, err := c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do(keyParam(key))
		if err != nil {
			return "", err
		}

		if len(response.Items) == 0 || response.Items[0].ContentDetails == nil ||
			response.Items[0].ContentDetails.RelatedPlaylists == nil ||
			response.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
			return "", &APIError{Status: http.StatusNotFound, Reason: "channelNotFound", Message: "no uploads playlist"}
		}
		return response.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
	})
	if ctx.Err() != nil {
		return "", nil
	}

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isMissingChannel(apiErr) {
			if c.cache != nil {
				c.cache.SetJSON(ctx, cacheKey, uploadsEntry{Missing: true})
			}
			return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve uploads playlist for %s: %w", channelID, err)
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, uploadsEntry{PlaylistID: playlistID})
	}
	return playlistID, nil
}

func isMissingChannel(e *APIError) bool {
	if e.IsNotFound() {
		return true
	}
	return e.Status == http.StatusForbidden && !e.IsQuota() && !e.IsAuth()
}

// PlaylistVideoIDs returns one page of video IDs from a playlist
func (c *YouTubeDataClient) PlaylistVideoIDs(ctx context.Context, playlistID, pageToken string, pageSize int) (Page, error) {
	cacheKey := state.Key{Op: "playlist", ID: playlistID, Extra: fmt.Sprintf("%s:%d", pageToken, pageSize)}
	var cached Page
	if c.cache != nil && c.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	page, err := invoke(ctx, c, OpPlaylistItems, c.costs.PlaylistItems, func(ctx context.Context, key string) (Page, error) {
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(pageSize)).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do(keyParam(key))
		if err != nil {
			return Page{}, err
		}

		out := Page{NextPageToken: response.NextPageToken}
		for _, item := range response.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				out.IDs = append(out.IDs, item.ContentDetails.VideoId)
			}
		}
		return out, nil
	})
	if err != nil || ctx.Err() != nil {
		return Page{}, err
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, page)
	}
	return page, nil
}

// VideosByIDs fetches snippet, statistics and duration for up to MaxBatchSize videos
func (c *YouTubeDataClient) VideosByIDs(ctx context.Context, ids []string) ([]model.VideoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("at most %d video IDs per call, got %d", MaxBatchSize, len(ids))
	}

	return invoke(ctx, c, OpVideos, c.costs.Videos, func(ctx context.Context, key string) ([]model.VideoRecord, error) {
		response, err := c.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(ids...).
			MaxResults(int64(len(ids))).
			Context(ctx).
			Do(keyParam(key))
		if err != nil {
			return nil, err
		}

		records := make([]model.VideoRecord, 0, len(response.Items))
		for _, item := range response.Items {
			records = append(records, Normalize(item))
		}
		return records, nil
	})
}

// ChannelSubscribers returns subscriber counts for up to MaxBatchSize channels.
// Channels hiding their count are omitted.
func (c *YouTubeDataClient) ChannelSubscribers(ctx context.Context, ids []string) (map[string]int64, error) {
	if len(ids) == 0 {
		return map[string]int64{}, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("at most %d channel IDs per call, got %d", MaxBatchSize, len(ids))
	}

	return invoke(ctx, c, OpChannels, c.costs.Channels, func(ctx context.Context, key string) (map[string]int64, error) {
		response, err := c.service.Channels.List([]string{"statistics"}).
			Id(ids...).
			MaxResults(int64(len(ids))).
			Context(ctx).
			Do(keyParam(key))
		if err != nil {
			return nil, err
		}

		out := make(map[string]int64, len(response.Items))
		for _, item := range response.Items {
			if item.Statistics == nil || item.Statistics.HiddenSubscriberCount {
				continue
			}
			out[item.Id] = int64(item.Statistics.SubscriberCount)
		}
		return out, nil
	})
}

// Probe verifies that key is usable with a single low-cost call
func (c *YouTubeDataClient) Probe(ctx context.Context, key string) error {
	err := c.fetcher.Do(ctx, key, c.fetcher.Options(OpProbe, c.costs.Probe), func(ctx context.Context) error {
		_, err := c.service.VideoCategories.List([]string{"snippet"}).
			RegionCode("US").
			Context(ctx).
			Do(keyParam(key))
		return err
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.pool.ReportError(key, err)
		return fmt.Errorf("credential %s failed probe: %w", quota.MaskKey(key), err)
	}
	return nil
}

// Normalize converts an API video resource into the canonical record
func Normalize(item *ytapi.Video) model.VideoRecord {
	record := model.VideoRecord{ID: item.Id}

	if s := item.Snippet; s != nil {
		record.Title = s.Title
		record.ChannelID = s.ChannelId
		record.ChannelTitle = s.ChannelTitle
		record.Tags = s.Tags

		if publishedAt, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
			record.PublishedAt = publishedAt
		} else {
			log.Warn().Err(err).Str("video_id", item.Id).Str("date", s.PublishedAt).Msg("Failed to parse video published date")
		}

		if t := s.Thumbnails; t != nil {
			switch {
			case t.High != nil:
				record.Thumbnail = t.High.Url
			case t.Medium != nil:
				record.Thumbnail = t.Medium.Url
			case t.Default != nil:
				record.Thumbnail = t.Default.Url
			}
		}
	}

	if st := item.Statistics; st != nil {
		record.ViewCount = int64(st.ViewCount)
		record.LikeCount = int64(st.LikeCount)
		record.CommentCount = int64(st.CommentCount)
	}

	if cd := item.ContentDetails; cd != nil {
		seconds, err := model.ParseISODuration(cd.Duration)
		if err != nil {
			log.Debug().Err(err).Str("video_id", item.Id).Msg("Unparseable video duration")
		}
		record.DurationSeconds = seconds
	}
	record.Format = model.ClassifyFormat(record.DurationSeconds)

	return record
}
