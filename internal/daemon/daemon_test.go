package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/api"
	"orderflow/internal/config"
	"orderflow/internal/daemon"
	"orderflow/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	require.NoError(t, cfg.EnsureDirectories())
	st := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, api.NewService(cfg, st, nil, nil), nil)
	require.NoError(t, err)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if !d.Running() {
		t.Fatal("expected daemon running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	require.NotEmpty(t, d.Addr())

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + d.Addr() + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status api.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Running)
	assert.NotZero(t, status.PID)

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon stopped")
	}
	assert.Empty(t, d.Addr())
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second, err := daemon.New(cfg, api.NewService(cfg, testsupport.MustOpenStore(t, cfg), nil, nil), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Start(ctx))
	defer first.Stop()

	err = second.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	first.Stop()
	require.NoError(t, second.Start(ctx))
	second.Stop()
}

func TestDaemonStopsWhenContextEnds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	cancel()

	done := make(chan error, 1)
	go func() { done <- d.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit after context cancellation")
	}
	d.Stop()
	assert.False(t, d.Running())
}

func TestDaemonStopRightAfterStartAndRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := d.Start(ctx); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		d.Stop()
		require.Empty(t, d.Addr())
	}

	require.NoError(t, d.Start(ctx))
	defer d.Stop()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + d.Addr() + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
