package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleFailer marks documents left in processing before cutoff as failed.
type StaleFailer interface {
	FailStaleDocuments(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper periodically fails documents whose analysis never finished, e.g.
// because the process died between the processing and completed writes.
type Reaper struct {
	cron       *cron.Cron
	repo       StaleFailer
	staleAfter time.Duration
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	running bool
}

// NewReaper schedules the reaper with a standard cron spec or a descriptor
// such as "@every 5m".
func NewReaper(repo StaleFailer, schedule string, staleAfter time.Duration, log *zap.Logger) (*Reaper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("reaper")
	r := &Reaper{
		repo:       repo,
		staleAfter: staleAfter,
		timeout:    30 * time.Second,
		logger:     log,
		now:        time.Now,
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(log))
	r.cron = cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("reap failed", zap.Error(err))
	}
}

// RunOnce fails every document stuck in processing for longer than staleAfter.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.staleAfter)
	n, err := r.repo.FailStaleDocuments(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("failed stale documents", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	} else {
		r.logger.Debug("no stale documents", zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
}

// Stop halts scheduling and waits for a running reap to finish or ctx to end.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
