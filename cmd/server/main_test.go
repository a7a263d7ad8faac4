package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/metrics"
	"github.com/KanavDutta/signalfence/pkg/signalfence"
	"github.com/KanavDutta/signalfence/store"
)

func testServer(t *testing.T, kv store.KV) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	engine, err := signalfence.NewEngine(
		signalfence.WithStore(kv),
		signalfence.WithLogger(log),
		signalfence.WithScheduler(signalfence.InlineScheduler{}),
	)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	srv := httptest.NewServer(newMux(engine, registry))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := testServer(t, store.NewMemoryStore())

	tests := []struct {
		path        string
		wantStatus  int
		contentType string
	}{
		{"/", http.StatusOK, "application/json"},
		{"/health", http.StatusOK, "application/json"},
		{"/metrics", http.StatusOK, "application/json"},
		{"/events", http.StatusOK, "application/json"},
		{"/dashboard", http.StatusOK, "text/html; charset=utf-8"},
		{"/metrics/prometheus", http.StatusOK, ""},
		{"/unknown", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestCheckEndpointFeedsPrometheus(t *testing.T) {
	srv := testServer(t, store.NewMemoryStore())

	resp, err := http.Post(srv.URL+"/check", "application/json",
		strings.NewReader(`{"ip":"203.0.113.50","path":"/signup","method":"POST","fields":{"website":"x"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics/prometheus")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "signalfence_requests_total")
	assert.Contains(t, string(body), `signalfence_checks_total{blocked="true",severity="HIGH",type="BOT_DETECTION"}`)
}

func TestHealthDegradedWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := store.NewRedisStore(store.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	srv := testServer(t, kv)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
}

func TestLoadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "security.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ddos:\n  threshold: 50\n  window: 30s\n"), 0644))

	viper.Set("config", path)
	viper.Set("mode", "dry_run")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, core.ModeDryRun, cfg.Mode)
	assert.Equal(t, 50, cfg.DDoS.Threshold)

	viper.Set("mode", "audit")
	_, err = loadConfig()
	assert.ErrorIs(t, err, signalfence.ErrInvalidMode)
}

func TestLoadConfig_LogLevel(t *testing.T) {
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "security.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

	viper.Set("config", path)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	viper.Set("log-level", "warn")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
