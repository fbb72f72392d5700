package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"transaction-sync-backend/internal/models"
)

// ErrSyncBusy is returned when a cycle is requested while one is already in
// progress. Cycles never overlap.
var ErrSyncBusy = errors.New("sync cycle already running")

type SchedulerConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// SourceDelay spaces the two sources within one cycle so their request
	// patterns do not correlate.
	SourceDelay DelayRange
	// CycleTimeout is a soft deadline so a stuck upstream cannot wedge the
	// scheduler indefinitely.
	CycleTimeout time.Duration

	BackfillSourceDelay DelayRange
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:            30 * time.Minute,
		StartupDelay:        10 * time.Second,
		SourceDelay:         DelayRange{Min: 10 * time.Second, Max: 15 * time.Second},
		CycleTimeout:        10 * time.Minute,
		BackfillSourceDelay: DelayRange{Min: 20 * time.Second, Max: 30 * time.Second},
	}
}

type SourceResult struct {
	Source models.SourceID `json:"source"`
	Stats  Stats           `json:"stats"`
}

type CycleSummary struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Sources   []SourceResult `json:"sources"`
}

type BackfillResult struct {
	Source models.SourceID `json:"source"`
	Stats  BackfillStats   `json:"stats"`
}

// Scheduler runs full sync cycles on a fixed interval and on demand. Both
// paths go through RunCycle; a manual trigger is indistinguishable from a
// scheduled one.
type Scheduler struct {
	cfg     SchedulerConfig
	orch    *Orchestrator
	sources []Source
	delayer Delayer
	logger  *zap.Logger

	mu      stdsync.Mutex
	running bool
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce stdsync.Once
}

func NewScheduler(cfg SchedulerConfig, orch *Orchestrator, sources []Source, delayer Delayer, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	return &Scheduler{
		cfg:     cfg,
		orch:    orch,
		sources: sources,
		delayer: delayer,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the interval loop. It returns immediately; the first cycle
// runs after StartupDelay.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop(ctx)
	s.logger.Info("sync scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("sources", len(s.sources)))
}

// Stop halts the interval loop and waits for an in-flight cycle to finish.
// Cancel the context passed to Start first to interrupt delays.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.logger.Info("sync scheduler stopped")
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	case <-startup.C:
	}
	s.runScheduled(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrSyncBusy) {
			s.logger.Warn("scheduled cycle skipped, previous cycle still running")
			return
		}
		s.logger.Error("scheduled cycle failed", zap.Error(err))
	}
}

// RunCycle synchronizes every source in order, strictly sequentially, with a
// randomized delay between sources. It rejects with ErrSyncBusy when a cycle
// is already in progress.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleSummary, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	started := time.Now().UTC()
	s.logger.Info("sync cycle starting", zap.Time("started_at", started))

	summary := &CycleSummary{StartedAt: started}
	for i, src := range s.sources {
		if i > 0 {
			if err := s.delayer.Wait(ctx, s.cfg.SourceDelay); err != nil {
				s.logger.Warn("cycle interrupted between sources", zap.Error(err))
				break
			}
		}
		stats := s.orch.SyncSource(ctx, src)
		summary.Sources = append(summary.Sources, SourceResult{Source: src.ID, Stats: stats})
	}
	summary.Duration = time.Since(started)

	var total Stats
	for _, result := range summary.Sources {
		total.Inserted += result.Stats.Inserted
		total.Updated += result.Stats.Updated
		total.Skipped += result.Stats.Skipped
		total.Errors += result.Stats.Errors
		total.PagesFetched += result.Stats.PagesFetched
	}
	s.logger.Info("sync cycle completed",
		zap.Duration("duration", summary.Duration),
		zap.Int("inserted", total.Inserted),
		zap.Int("updated", total.Updated),
		zap.Int("skipped", total.Skipped),
		zap.Int("errors", total.Errors),
		zap.Int("pages", total.PagesFetched))
	return summary, nil
}

// RunBackfill fills missing amounts for every source, honoring the same
// no-overlap rule as sync cycles. No cycle timeout applies: a deep backfill
// legitimately runs for a long time.
func (s *Scheduler) RunBackfill(ctx context.Context) ([]BackfillResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	var results []BackfillResult
	for i, src := range s.sources {
		if i > 0 {
			if err := s.delayer.Wait(ctx, s.cfg.BackfillSourceDelay); err != nil {
				return results, err
			}
		}
		stats, err := s.orch.BackfillAmounts(ctx, src)
		results = append(results, BackfillResult{Source: src.ID, Stats: stats})
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *Scheduler) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSyncBusy
	}
	s.running = true
	return nil
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
