package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	canonicaldomain "github.com/smallbiznis/quicksearch/internal/canonical/domain"
	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/config"
	obsmetrics "github.com/smallbiznis/quicksearch/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNormalizer struct {
	calls atomic.Int32
	err   error
	block bool
}

func (f *fakeNormalizer) NormalizeCatalog(ctx context.Context) (*canonicaldomain.Report, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &canonicaldomain.Report{ProductsVisited: 3}, nil
}

func newTestScheduler(t *testing.T, normalizer canonicaldomain.Service, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:        zap.NewNop(),
		Normalizer: normalizer,
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnce(t *testing.T) {
	n := &fakeNormalizer{}
	s := newTestScheduler(t, n, DefaultConfig())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), n.calls.Load())
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	n := &fakeNormalizer{err: obsmetrics.ErrNormalizeLocked}
	s := newTestScheduler(t, n, DefaultConfig())

	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestRunOnceWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	s := newTestScheduler(t, &fakeNormalizer{err: boom}, DefaultConfig())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), jobNormalizeCatalog)
}

func TestRunOnceTreatsTimeoutAsSoft(t *testing.T) {
	n := &fakeNormalizer{block: true}
	s := newTestScheduler(t, n, Config{JobTimeout: 10 * time.Millisecond})

	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestRunForeverWithoutIntervalRunsOnce(t *testing.T) {
	n := &fakeNormalizer{}
	s := newTestScheduler(t, n, Config{RunOnStartup: true})

	s.RunForever(context.Background())
	assert.Equal(t, int32(1), n.calls.Load())

	idle := &fakeNormalizer{}
	newTestScheduler(t, idle, Config{}).RunForever(context.Background())
	assert.Equal(t, int32(0), idle.calls.Load())
}

func TestRunForeverTicksUntilCancelled(t *testing.T) {
	n := &fakeNormalizer{}
	s := newTestScheduler(t, n, Config{RunInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	require.Eventually(t, func() bool { return n.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestProvideConfigFromAppConfig(t *testing.T) {
	cfg := ProvideConfig(config.Config{NormalizeOnStartup: false, NormalizeInterval: time.Minute})
	assert.False(t, cfg.RunOnStartup)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, DefaultConfig().JobTimeout, cfg.JobTimeout)
}
