package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"subscriber/internal/api"
	"subscriber/internal/auth"
	"subscriber/internal/models"
	"subscriber/internal/notify"
	"subscriber/internal/storage"
	"subscriber/internal/version"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPrintRoutes(t *testing.T) {
	cfg := models.NewDefaultConfig()
	cfg.Security.EnableAuth = true

	var out bytes.Buffer
	require.NoError(t, printRoutes(&out, cfg))

	table := out.String()
	for _, want := range []string{"/api/v1/users/{id}", "/subscriptions/confirm", "/health", "DELETE", "bearer"} {
		assert.Contains(t, table, want)
	}
}

func TestAuthLabel(t *testing.T) {
	cfg := models.NewDefaultConfig()
	cfg.Security.EnableAuth = true

	tests := []struct {
		path    string
		methods []string
		want    string
	}{
		{"/api/v1/users", []string{"POST"}, "-"},
		{"/api/v1/users", []string{"GET"}, "bearer"},
		{"/api/v1/users/{id}", []string{"DELETE"}, "bearer"},
		{"/subscriptions", []string{"POST"}, "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, authLabel(cfg, api.RouteInfo{Path: tt.path, Methods: tt.methods}), "%v %s", tt.methods, tt.path)
	}

	cfg.Security.EnableAuth = false
	assert.Equal(t, "-", authLabel(cfg, api.RouteInfo{Path: "/api/v1/users", Methods: []string{"GET"}}))
}

func TestConfigExampleAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := runCmd(t, "config", "example", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = runCmd(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, err := runCmd(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "subscriber version "))

	out, err = runCmd(t, "version", "--json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetInfo().InstanceID, info.InstanceID)

	_, err = runCmd(t, "version", "--require", "not a constraint!!")
	assert.Error(t, err)
}

func TestNewHandlers_LoginDisabledWithoutTokens(t *testing.T) {
	store, err := storage.NewMemoryStorage(storage.Config{Type: "memory"})
	require.NoError(t, err)

	h := newHandlers(store, nil, notify.LogSender{}, models.NewDefaultConfig(), version.Info{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@example.com","password":"password123"}`))
	h.Login(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildRateLimiter_Memory(t *testing.T) {
	cfg := models.NewDefaultConfig()
	cfg.RateLimit.MaxRequests = 2
	cfg.RateLimit.AuthenticatedMaxRequests = 4
	cfg.RateLimit.Window = time.Minute

	tokens, err := auth.NewTokenManager(strings.Repeat("s", 32), auth.DefaultIssuer, time.Hour, models.MinJWTSecretLength)
	require.NoError(t, err)
	token, _, err := tokens.Issue("user-1")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	mw, cleanup, err := buildRateLimiter(context.Background(), cfg, tokens, reg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	hit := func(bearer string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit(""))
	assert.Equal(t, http.StatusOK, hit(""))
	assert.Equal(t, http.StatusTooManyRequests, hit(""))

	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusOK, hit(token))
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(token))

	count, err := testutil.GatherAndCount(reg, "subscriber_rate_limit_decisions_total", "subscriber_rate_limit_tracked_keys")
	require.NoError(t, err)
	// admit+reject for each client class, plus the gauge
	assert.Equal(t, 5, count)
}

func TestBuildRateLimiter_RejectsBadLimits(t *testing.T) {
	cfg := models.NewDefaultConfig()
	cfg.RateLimit.MaxRequests = 0

	_, _, err := buildRateLimiter(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
