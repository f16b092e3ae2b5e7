package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmskss/portfolio-health-report/internal/config"
)

type stubPruner struct {
	maxAge    time.Duration
	batchSize int
	deleted   int64
	err       error
}

func (s *stubPruner) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.maxAge = maxAge
	s.batchSize = batchSize
	return s.deleted, s.err
}

type flakyPinger struct {
	failures int
	calls    int
}

func (f *flakyPinger) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPruneOncePassesRetentionWindow(t *testing.T) {
	p := &stubPruner{deleted: 12}
	cfg := &config.Retention{MaxAge: 48 * time.Hour, BatchSize: 200}

	require.Equal(t, int64(12), pruneOnce(context.Background(), discardLogger(), p, cfg))
	require.Equal(t, 48*time.Hour, p.maxAge)
	require.Equal(t, 200, p.batchSize)
}

func TestPruneOnceSwallowsErrors(t *testing.T) {
	p := &stubPruner{deleted: 5, err: errors.New("cluster red")}
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10}

	require.Zero(t, pruneOnce(context.Background(), discardLogger(), p, cfg))
}

func TestWaitForClusterRetries(t *testing.T) {
	p := &flakyPinger{failures: 2}
	require.NoError(t, waitForCluster(context.Background(), discardLogger(), p, time.Millisecond))
	require.Equal(t, 3, p.calls)
}

func TestWaitForClusterGivesUp(t *testing.T) {
	p := &flakyPinger{failures: maxConnectAttempts}
	err := waitForCluster(context.Background(), discardLogger(), p, time.Millisecond)
	require.ErrorIs(t, err, errNotConnected)
	require.Equal(t, maxConnectAttempts, p.calls)
}

func TestWaitForClusterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForCluster(ctx, discardLogger(), &flakyPinger{failures: 100}, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
