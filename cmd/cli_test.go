package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/odit-bit/tambal/api"
	"github.com/odit-bit/tambal/tambal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/fix":
			var in api.FixRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, int64(5), in.UserID)
			if strings.Contains(in.Code, "busy") {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"All models are busy right now.","source":"error"}`))
				return
			}
			w.Write([]byte(`{"fixed_code":"x = 1","code_only":true,"filename":"main.py","model":"deepseek-r1","source":"live"}`))
		case "/api/rate":
			var in api.RateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			w.Write([]byte(`{"status":"ok","applied":` + map[string]string{"good": "true", "bad": "false"}[in.Rating] + `}`))
		case "/api/stats":
			w.Write([]byte(`{"total_solutions":2,"reliable_solutions":1,"positive_ratings":1,"negative_ratings":0,"total_queries":3,"distinct_users":2}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestChat(t *testing.T) {
	ts := fakeAPI(t)
	defer ts.Close()

	in := strings.NewReader("NameError: name 'x' is not defined\r\n\n/good\n/bad\n/stats\nmodels are busy\n/exit\nnever sent\n")
	var out bytes.Buffer

	err := chat(context.Background(), in, &out, api.NewClient(ts.URL), 5)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, ">deepseek-r1 [live] main.py: \nx = 1")
	assert.Contains(t, got, ">rated")
	assert.Contains(t, got, ">nothing to rate")
	assert.Contains(t, got, ">solutions: 2 (reliable 1), ratings: +1/-0, queries: 3, users: 2")
	assert.Contains(t, got, "All models are busy right now.")
	assert.Equal(t, 1, strings.Count(got, "x = 1"))
}

func TestScanLines(t *testing.T) {
	adv, tok, err := ScanLines([]byte("abc\r\ndef"), false)
	require.NoError(t, err)
	assert.Equal(t, 5, adv)
	assert.Equal(t, "abc", string(tok))

	adv, tok, _ = ScanLines([]byte("def"), true)
	assert.Equal(t, 3, adv)
	assert.Equal(t, "def", string(tok))

	adv, tok, _ = ScanLines([]byte("def"), false)
	assert.Zero(t, adv)
	assert.Nil(t, tok)
}

func TestRunServer_stopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1:0"},
		Provider: config.Provider{
			Name:     "ollama",
			Endpoint: "http://127.0.0.1:1",
			Models:   []string{"qwen3:1.7b"},
			Timeout:  time.Second,
		},
		Store: config.StoreConfig{
			Path:          filepath.Join(t.TempDir(), "tambal.db"),
			Retention:     time.Hour,
			PruneInterval: time.Minute,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.NoError(t, runServer(ctx, cfg))
}
