package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/simplefilter/internal/filter/config"
	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/gateways/httpapi"
	"github.com/haukened/simplefilter/internal/filter/services/engine"
	"github.com/haukened/simplefilter/internal/filter/services/sources"
)

func startApp(t *testing.T, app *Application) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-appErr:
			if err != nil {
				t.Errorf("Application shutdown error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Application failed to shutdown")
		}
	})
}

func getJSON(t *testing.T, rawURL string, v any) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// TestE2E_RemoteList configures everything from the environment and serves
// the list over HTTP.
func TestE2E_RemoteList(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(rulesList))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	addr := freeAddr(t)
	listURL := upstream.URL + "/lists/ads.txt"

	t.Setenv("SIMPLEFILTER_ENV", "dev")
	t.Setenv("SIMPLEFILTER_LOG__LEVEL", "error") // Reduce noise
	t.Setenv("SIMPLEFILTER_LISTEN", addr)
	t.Setenv("SIMPLEFILTER_PROFILES__DIR", filepath.Join(dir, "cache"))
	t.Setenv("SIMPLEFILTER_STATE__DB", filepath.Join(dir, "state.db"))
	t.Setenv("SIMPLEFILTER_FETCH__TIMEOUT", "5s")
	t.Setenv("SIMPLEFILTER_LISTS__FILTER_LIST_2", listURL)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, listURL, cfg.Lists[config.ListKey(2)])

	app, err := buildApplication(cfg, "")
	require.NoError(t, err)
	startApp(t, app)

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "HTTP API failed to start")
	// The API is up before the first download finishes.
	waitForProfile(t, app, 2, domain.StateFresh)

	var got httpapi.DecisionResponse
	getJSON(t, base+"/v1/decision?phase=request&url="+url.QueryEscape("https://bad.net/ad.js")+"&type=script", &got)
	assert.Equal(t, "block", got.Action)
	assert.Equal(t, 2, got.Slot)
	assert.True(t, got.HostResponse.Cancel)

	var profiles []sources.Profile
	getJSON(t, base+"/v1/profiles", &profiles)
	require.Len(t, profiles, 5)
	p := profiles[2]
	assert.Equal(t, domain.StateFresh.String(), p.State)
	assert.True(t, p.NoEdit)
	assert.Equal(t, filepath.Join(dir, "cache", "ads.txt"), p.Path)
	require.NotNil(t, p.Fetch)
	assert.Equal(t, `"v1"`, p.Fetch.ETag)

	// The cached copy is fresh, so a manual reload parses it without a request.
	before := hits.Load()
	done := app.engine.OnFileChanged(context.Background(), 2)
	require.NotNil(t, done)
	<-done
	assert.Equal(t, before, hits.Load())
}

// TestE2E_ConfigFileReload rewrites the config file of a running daemon.
func TestE2E_ConfigFileReload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	path, _ := testConfig(t, "")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	app, err := buildApplication(cfg, path)
	require.NoError(t, err)
	startApp(t, app)
	waitForProfile(t, app, 0, domain.StateFresh)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	updated := strings.Replace(string(data),
		"  filter_list_0: rules.txt@profile\n",
		"  filter_list_0: rules.txt@profile\n  filter_list_1: other.txt@PROFILE\n", 1)
	require.NotEqual(t, string(data), updated)

	// Replace the file in one step so the watcher never sees it half written.
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(updated), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return app.engine.Profiles()[1].State == domain.StateFresh.String()
	}, 5*time.Second, 20*time.Millisecond, "profile 1 was not loaded after the config file changed")
	assert.Equal(t, domain.StateFresh.String(), app.engine.Profiles()[0].State)
	assert.Equal(t, domain.ActionBlock, app.engine.Decide(domain.RequestEvent{URL: "https://other.net/x", Type: domain.ResourceOther}, engine.PhaseRequest).Action)
}

// TestE2E_ServesWhileRemoteFetches keeps a remote download hanging and checks
// that the API already answers from the local list.
func TestE2E_ServesWhileRemoteFetches(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	release := make(chan struct{})
	requested := make(chan struct{}, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case requested <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(otherList))
	}))
	defer upstream.Close()
	defer close(release)

	addr := freeAddr(t)
	path, _ := testConfig(t, addr)
	t.Setenv("SIMPLEFILTER_LISTS__FILTER_LIST_1", upstream.URL+"/slow.txt")
	t.Setenv("SIMPLEFILTER_FETCH__TIMEOUT", "30s")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	app, err := buildApplication(cfg, "")
	require.NoError(t, err)
	startApp(t, app)

	select {
	case <-requested:
	case <-time.After(5 * time.Second):
		t.Fatal("remote list was never requested")
	}

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/decision?url=" + url.QueryEscape("https://bad.net/x"))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var got httpapi.DecisionResponse
		if json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		return got.Action == "block"
	}, 2*time.Second, 10*time.Millisecond, "local list not served while the remote one loads")

	assert.Equal(t, domain.StateFetching.String(), app.engine.Profiles()[1].State)
}
