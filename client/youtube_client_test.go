package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	model "github.com/researchaccelerator-hub/youtube-trends/model/youtube"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ytapi "google.golang.org/api/youtube/v3"
)

// fakeAPI routes Data API paths to handlers and records the key of every request
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	keys     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) handle(resource string, h http.HandlerFunc) {
	f.handlers["/youtube/v3/"+resource] = h
}

func (f *fakeAPI) count(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["/youtube/v3/"+resource]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.keys = append(f.keys, r.URL.Query().Get("key"))
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}

type testEnv struct {
	api    *fakeAPI
	client *YouTubeDataClient
	pool   *quota.Pool
	cache  *state.TTLCache
}

func newTestEnv(t *testing.T, keys ...string) *testEnv {
	t.Helper()
	ctx := context.Background()

	api := newFakeAPI()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	store := state.NewMemoryStore()
	ledger, err := quota.NewLedger(ctx, quota.OptionsFromConfig(config.DefaultPipelineConfig().Quota), quota.NewStorePersistence(store))
	require.NoError(t, err)
	pool, err := quota.NewPool(ctx, ledger, store)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, pool.Add(ctx, k))
	}

	cache, err := state.NewTTLCache(store, time.Hour, 100)
	require.NoError(t, err)

	c, err := NewYouTubeDataClient(ctx, ClientConfig{
		Pool:       pool,
		Cache:      cache,
		Costs:      config.DefaultPipelineConfig().Costs,
		Retry:      config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond},
		Endpoint:   server.URL + "/",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	return &testEnv{api: api, client: c, pool: pool, cache: cache}
}

func used(t *testing.T, p *quota.Pool, key string) int {
	t.Helper()
	u, ok := p.Ledger().Usage(key)
	require.True(t, ok)
	return u.Used
}

func TestNewYouTubeDataClient_RequiresPool(t *testing.T) {
	_, err := NewYouTubeDataClient(context.Background(), ClientConfig{})
	assert.Error(t, err)
}

func TestSearchChannels(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "channel", r.URL.Query().Get("type"))
		assert.Equal(t, "시니어", r.URL.Query().Get("q"))
		writeJSON(w, 200, map[string]any{
			"nextPageToken": "p2",
			"items": []map[string]any{
				{"id": map[string]string{"kind": "youtube#channel", "channelId": "c1"}},
				{"id": map[string]string{"kind": "youtube#channel", "channelId": "c2"}},
			},
		})
	})

	ctx := context.Background()
	page, err := env.client.SearchChannels(ctx, "시니어", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, page.IDs)
	assert.Equal(t, "p2", page.NextPageToken)
	assert.Equal(t, 100, used(t, env.pool, "key-one-123456"))

	// second call is served from the cache and costs nothing
	page, err = env.client.SearchChannels(ctx, "시니어", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, page.IDs)
	assert.Equal(t, 1, env.api.count("search"))
	assert.Equal(t, 100, used(t, env.pool, "key-one-123456"))

	assert.Equal(t, []string{"key-one-123456"}, env.api.keys)
}

func TestSearchVideos(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "viewCount", q.Get("order"))
		assert.Equal(t, "short", q.Get("videoDuration"))
		assert.True(t, strings.HasPrefix(q.Get("publishedAfter"), "2024-05-01T"))
		writeJSON(w, 200, map[string]any{
			"items": []map[string]any{
				{"id": map[string]string{"kind": "youtube#video", "videoId": "v1"}},
			},
		})
	})

	page, err := env.client.SearchVideos(context.Background(), "건강", SearchVideoOptions{
		PublishedAfter: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Duration:       "short",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, page.IDs)
}

func TestUploadsPlaylistID_NegativeCache(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("channels", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "c1":
			writeJSON(w, 200, map[string]any{
				"items": []map[string]any{{
					"id":             "c1",
					"contentDetails": map[string]any{"relatedPlaylists": map[string]string{"uploads": "UU1"}},
				}},
			})
		default:
			writeAPIError(w, 404, "channelNotFound")
		}
	})

	ctx := context.Background()
	id, err := env.client.UploadsPlaylistID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "UU1", id)

	_, err = env.client.UploadsPlaylistID(ctx, "c2")
	assert.ErrorIs(t, err, ErrNotFound)

	// both answers are cached
	_, err = env.client.UploadsPlaylistID(ctx, "c2")
	assert.ErrorIs(t, err, ErrNotFound)
	id, err = env.client.UploadsPlaylistID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "UU1", id)
	assert.Equal(t, 2, env.api.count("channels"))
}

func TestUploadsPlaylistID_ForbiddenChannelIsSkipped(t *testing.T) {
	keys := []string{"key-one-123456", "key-two-654321", "key-three-987654"}
	env := newTestEnv(t, keys...)
	env.api.handle("channels", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, 403, "forbidden")
	})

	ctx := context.Background()
	_, err := env.client.UploadsPlaylistID(ctx, "restricted")
	assert.ErrorIs(t, err, ErrNotFound)

	// cached as missing, no second lookup
	_, err = env.client.UploadsPlaylistID(ctx, "restricted")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, env.api.count("channels"))

	// a restricted channel says nothing about the keys
	for _, k := range keys {
		u, _ := env.pool.Ledger().Usage(k)
		assert.Equal(t, quota.StatusActive, u.Status, k)
		assert.False(t, u.Invalid, k)
	}
	assert.Len(t, env.pool.Keys(), 3)
}

func TestUploadsPlaylistID_EmptyResultIsMissing(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"items": []any{}})
	})

	_, err := env.client.UploadsPlaylistID(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuotaErrorRotatesCredential(t *testing.T) {
	env := newTestEnv(t, "key-one-123456", "key-two-654321")
	env.api.handle("playlistItems", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "key-one-123456" {
			writeAPIError(w, 403, "quotaExceeded")
			return
		}
		writeJSON(w, 200, map[string]any{
			"items": []map[string]any{
				{"contentDetails": map[string]string{"videoId": "v1"}},
				{"contentDetails": map[string]string{"videoId": "v2"}},
			},
		})
	})

	page, err := env.client.PlaylistVideoIDs(context.Background(), "UU1", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, page.IDs)

	// key one still has headroom, so the 403 is treated as a false positive
	u, _ := env.pool.Ledger().Usage("key-one-123456")
	assert.Equal(t, quota.StatusActive, u.Status)
	assert.Zero(t, u.Errors)

	// both attempts were billed
	assert.Equal(t, 1, used(t, env.pool, "key-one-123456"))
	assert.Equal(t, 1, used(t, env.pool, "key-two-654321"))
	assert.Equal(t, 2, env.api.count("playlistItems"))
}

func TestNoCredential(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.SearchChannels(context.Background(), "x", "", 50)
	assert.ErrorIs(t, err, quota.ErrNoCredential)
}

func TestVideosByIDs(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1,v2", r.URL.Query().Get("id"))
		writeJSON(w, 200, map[string]any{
			"items": []map[string]any{
				{
					"id": "v1",
					"snippet": map[string]any{
						"title":        "Morning stretch",
						"channelId":    "c1",
						"channelTitle": "Healthy Days",
						"publishedAt":  "2024-05-01T09:00:00Z",
						"thumbnails":   map[string]any{"medium": map[string]string{"url": "https://i.ytimg.com/m.jpg"}},
					},
					"statistics":     map[string]string{"viewCount": "1000", "likeCount": "50", "commentCount": "5"},
					"contentDetails": map[string]string{"duration": "PT59S"},
				},
				{
					"id":             "v2",
					"snippet":        map[string]any{"title": "Long talk", "publishedAt": "2024-05-01T10:00:00Z"},
					"statistics":     map[string]string{"viewCount": "10"},
					"contentDetails": map[string]string{"duration": "PT12M"},
				},
			},
		})
	})

	records, err := env.client.VideosByIDs(context.Background(), []string{"v1", "v2"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Morning stretch", records[0].Title)
	assert.Equal(t, int64(1000), records[0].ViewCount)
	assert.Equal(t, int64(50), records[0].LikeCount)
	assert.Equal(t, int64(59), records[0].DurationSeconds)
	assert.Equal(t, model.FormatShorts, records[0].Format)
	assert.Equal(t, "https://i.ytimg.com/m.jpg", records[0].Thumbnail)
	assert.Equal(t, model.FormatLong, records[1].Format)
	assert.False(t, records[0].IsSimulated)

	assert.Equal(t, 1, used(t, env.pool, "key-one-123456"))

	_, err = env.client.VideosByIDs(context.Background(), make([]string, MaxBatchSize+1))
	assert.Error(t, err)
}

func TestChannelSubscribers(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"items": []map[string]any{
				{"id": "c1", "statistics": map[string]any{"subscriberCount": "1200"}},
				{"id": "c2", "statistics": map[string]any{"hiddenSubscriberCount": true}},
			},
		})
	})

	subs, err := env.client.ChannelSubscribers(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"c1": 1200}, subs)
}

func TestTransientErrorRetriedThenReported(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	env.api.handle("videos", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, 503, "backendError")
	})

	_, err := env.client.VideosByIDs(context.Background(), []string{"v1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsTransient())
	assert.Equal(t, 3, env.api.count("videos"))

	u, _ := env.pool.Ledger().Usage("key-one-123456")
	assert.Equal(t, 1, u.Errors)
	assert.Zero(t, u.Used)
}

func TestProbe(t *testing.T) {
	env := newTestEnv(t, "good-key-123456", "bad-key-1234567")
	env.api.handle("videoCategories", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad-key-1234567" {
			writeAPIError(w, 400, "keyInvalid")
			return
		}
		writeJSON(w, 200, map[string]any{"items": []any{}})
	})

	ctx := context.Background()
	require.NoError(t, env.client.Probe(ctx, "good-key-123456"))
	assert.Equal(t, 1, used(t, env.pool, "good-key-123456"))

	require.Error(t, env.client.Probe(ctx, "bad-key-1234567"))
	u, _ := env.pool.Ledger().Usage("bad-key-1234567")
	assert.Equal(t, quota.StatusError, u.Status)
}

func TestCancelledCallReturnsEmpty(t *testing.T) {
	env := newTestEnv(t, "key-one-123456")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page, err := env.client.PlaylistVideoIDs(ctx, "UU1", "", 50)
	assert.NoError(t, err)
	assert.Empty(t, page.IDs)
	assert.Zero(t, env.api.count("playlistItems"))
}

func TestNormalize_MissingParts(t *testing.T) {
	record := Normalize(&ytapi.Video{Id: "bare"})
	assert.Equal(t, "bare", record.ID)
	assert.Equal(t, model.FormatShorts, record.Format)
	assert.True(t, record.PublishedAt.IsZero())
}
