package standalone

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	"github.com/researchaccelerator-hub/youtube-trends/orchestrator"
	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// newDataAPIServer serves one channel with two recent uploads
func newDataAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	published := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videoCategories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{}})
	})
	mux.HandleFunc("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"id": map[string]string{"kind": "youtube#channel", "channelId": "c1"}},
			},
		})
	})
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items": []map[string]any{{
				"id":             "c1",
				"contentDetails": map[string]any{"relatedPlaylists": map[string]string{"uploads": "UU1"}},
			}},
		})
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"contentDetails": map[string]string{"videoId": "v1"}},
				{"contentDetails": map[string]string{"videoId": "v2"}},
			},
		})
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		video := func(id, views string) map[string]any {
			return map[string]any{
				"id": id,
				"snippet": map[string]any{
					"title":        "시니어 체조 " + id,
					"channelId":    "c1",
					"channelTitle": "실버헬스TV",
					"publishedAt":  published,
				},
				"contentDetails": map[string]string{"duration": "PT8M10S"},
				"statistics":     map[string]string{"viewCount": views, "likeCount": "40", "commentCount": "4"},
			}
		}
		writeJSON(w, map[string]any{"items": []any{video("v1", "1000"), video("v2", "5000")}})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig() *config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.Store.Backend = "memory"
	cfg.Delays = config.DelayConfig{}
	cfg.Retry = config.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond}
	return cfg
}

func newTestServices(t *testing.T, server *httptest.Server, keys ...string) *Services {
	t.Helper()
	svc, err := NewServices(context.Background(), testConfig(), Options{
		APIKeys:    keys,
		Endpoint:   server.URL + "/",
		HTTPClient: server.Client(),
		Store:      state.NewMemoryStore(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewServicesRegistersKeys(t *testing.T) {
	server := newDataAPIServer(t)
	svc := newTestServices(t, server, "key-alpha-0001", "key-alpha-0001", " ", "key-beta-0002")

	assert.Equal(t, []string{"key-alpha-0001", "key-beta-0002"}, svc.Pool.Keys())
	assert.Equal(t, 20000, svc.Pool.Remaining())
}

func TestStartStandaloneModeWritesFile(t *testing.T) {
	server := newDataAPIServer(t)
	svc := newTestServices(t, server, "key-alpha-0001")

	req, err := orchestrator.NewScanRequest(svc.Config, [][]string{{"시니어"}})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "results", "scan.json")
	result, err := StartStandaloneMode(context.Background(), svc, req, RunOptions{Output: out}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StageDone, result.Stage)
	assert.False(t, result.Simulated)
	require.Len(t, result.Videos, 2)
	assert.Equal(t, "v2", result.Videos[0].ID)

	// at least probe + search + channels + playlist + videos
	assert.GreaterOrEqual(t, result.UnitsUsed, 1+100+1+1+1)
	assert.Equal(t, svc.Config.Quota.DailyCap-result.UnitsUsed, svc.Pool.Remaining())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded orchestrator.Result
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, result.ScanID, decoded.ScanID)
	assert.Len(t, decoded.Videos, 2)
}

func TestRunWithoutKeysIsSimulated(t *testing.T) {
	server := newDataAPIServer(t)
	svc := newTestServices(t, server)

	var stdout bytes.Buffer
	result, err := RunSearch(context.Background(), svc, orchestrator.SearchRequest{Keyword: "시니어 요리", Results: 5}, RunOptions{}, &stdout)
	require.NoError(t, err)

	assert.True(t, result.Simulated)
	assert.Len(t, result.Videos, 5)

	var decoded orchestrator.Result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.True(t, decoded.Simulated)
	assert.Len(t, decoded.Videos, 5)
}

func TestCloseSavesLedger(t *testing.T) {
	server := newDataAPIServer(t)
	store := state.NewMemoryStore()
	svc, err := NewServices(context.Background(), testConfig(), Options{
		APIKeys:    []string{"key-alpha-0001"},
		Endpoint:   server.URL + "/",
		HTTPClient: server.Client(),
		Store:      store,
	})
	require.NoError(t, err)

	svc.Pool.RecordUsage("key-alpha-0001", 42)

	_, found, err := store.Get(context.Background(), state.KeyQuotaLedger)
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, svc.Close())
}
