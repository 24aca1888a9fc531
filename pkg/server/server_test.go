package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taxlab-hq/ledger/pkg/api"
	"taxlab-hq/ledger/pkg/config"
	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/country/uk"
	"taxlab-hq/ledger/pkg/dataset"
	"taxlab-hq/ledger/pkg/tasks"
	"taxlab-hq/ledger/pkg/tasks/store"
	"taxlab-hq/ledger/pkg/telemetry/health"
	"taxlab-hq/ledger/pkg/telemetry/metrics"
)

func newRuntime(t *testing.T) *api.Runtime {
	t.Helper()
	c, err := uk.New(country.Config{Households: 40, Seed: 5})
	if err != nil {
		t.Fatal(err)
	}
	ds, err := dataset.NewSQLiteStore(&dataset.SQLiteConfig{Path: filepath.Join(t.TempDir(), "datasets.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	rt, err := api.NewRuntime(api.RuntimeConfig{Country: c, Store: ds})
	if err != nil {
		t.Fatal(err)
	}
	return rt
}

func serverConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		WriteTimeout:    time.Minute,
		ShutdownTimeout: 5 * time.Second,
		MaxBodyBytes:    1 << 20,
		CORS:            config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
	}
}

func TestRoutes(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	srv := NewServer(serverConfig(), Options{
		Runtimes: []*api.Runtime{newRuntime(t)},
		Metrics:  collector,
		Version:  health.VersionInfo{Version: "test"},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/version", http.StatusOK},
		{"/uk/api/entities", http.StatusOK},
		{"/uk/api/variables", http.StatusOK},
		{"/fr/api/entities", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("X-Request-ID missing")
			}
			if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
				t.Error("CORS header missing")
			}
		})
	}

	resp, err := http.Get(ts.URL + "/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	var body api.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.Error.Type != api.ErrorTypeNotFound {
		t.Errorf("404 body = %+v", body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	scrape, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(scrape), `ledger_api_requests_total{country="uk",endpoint="entities",status="200"}`) {
		t.Errorf("request metric missing from scrape:\n%s", scrape)
	}
}

func TestLifecycle(t *testing.T) {
	runner, err := tasks.NewRunner(store.NewMemoryBackend(), tasks.Config{Version: "test"})
	if err != nil {
		t.Fatal(err)
	}
	closed := false
	srv := NewServer(serverConfig(), Options{
		Runtimes: []*api.Runtime{newRuntime(t)},
		Runner:   runner,
		Sweeper:  tasks.NewSweeper(runner, "0 4 * * *", nil),
		Closers:  []func() error{func() error { closed = true; return nil }},
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	srv.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after Stop()")
	}

	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
	if !closed {
		t.Error("closers not run")
	}
	if _, err := runner.Handle(context.Background(), "uk_ubi", map[string]any{}, nil); !errors.Is(err, tasks.ErrClosed) {
		t.Errorf("runner accepted work after shutdown: %v", err)
	}
}
