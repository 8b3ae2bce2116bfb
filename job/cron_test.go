package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeRepo) FailStaleDocuments(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakeRepo) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestRunOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	repo := &fakeRepo{n: 2}
	r, err := NewReaper(repo, "@every 1h", 15*time.Minute, zap.New(core))
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, []time.Time{now.Add(-15 * time.Minute)}, repo.cutoffs)
	assert.Equal(t, 1, logs.FilterMessage("failed stale documents").Len())

	repo.err = errors.New("db down")
	_, err = r.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestInvalidSchedule(t *testing.T) {
	_, err := NewReaper(&fakeRepo{}, "not a schedule", time.Minute, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	repo := &fakeRepo{}
	r, err := NewReaper(repo, "@every 1s", time.Minute, nil)
	require.NoError(t, err)

	r.Start()
	r.Start()
	require.Eventually(t, func() bool { return repo.calls() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx), "second stop is a no-op")
}
