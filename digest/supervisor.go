package digest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mnemo-app/mnemo/config"
)

// SupervisorConfig carries the pacing knobs of the background loop
type SupervisorConfig struct {
	StartDelay       time.Duration
	IdleSleep        time.Duration
	FileDelay        time.Duration
	FailureBaseDelay time.Duration
	FailureMaxDelay  time.Duration
	StaleThreshold   time.Duration
	StaleSweep       time.Duration
	BatchSize        int
	MaxAttempts      int
	ExcludedPrefixes []string
}

// SupervisorConfigFromEnv builds the supervisor config from the
// application configuration
func SupervisorConfigFromEnv() SupervisorConfig {
	cfg := config.Get()
	return SupervisorConfig{
		StartDelay:       time.Duration(cfg.DigestStartDelayMs) * time.Millisecond,
		IdleSleep:        time.Duration(cfg.DigestIdleSleepMs) * time.Millisecond,
		FileDelay:        time.Duration(cfg.DigestFileDelayMs) * time.Millisecond,
		FailureBaseDelay: time.Duration(cfg.DigestFailureBaseDelayMs) * time.Millisecond,
		FailureMaxDelay:  time.Duration(cfg.DigestFailureMaxDelayMs) * time.Millisecond,
		StaleThreshold:   time.Duration(cfg.DigestStaleThresholdMs) * time.Millisecond,
		StaleSweep:       time.Duration(cfg.DigestStaleSweepMs) * time.Millisecond,
		BatchSize:        25,
		MaxAttempts:      cfg.DigestMaxAttempts,
		ExcludedPrefixes: cfg.DigestExcludedPrefixes,
	}
}

// changeRequest is a file pushed at the supervisor by the watcher
type changeRequest struct {
	filePath string
	reset    bool
}

// supervisorRunning guards against two supervisors in one process
var supervisorRunning atomic.Bool

// Supervisor owns the background digest loop. It drains watcher events
// first, then polls the catalog for files with pending work, pacing
// itself with delays and backing off exponentially after failures.
type Supervisor struct {
	cfg         SupervisorConfig
	store       Store
	registry    *Registry
	coordinator *Coordinator

	changes chan changeRequest
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor around an existing coordinator
func NewSupervisor(cfg SupervisorConfig, store Store, registry *Registry, coordinator *Coordinator) *Supervisor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Supervisor{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		coordinator: coordinator,
		changes:     make(chan changeRequest, 1000),
	}
}

// Start launches the background loops. Only one supervisor may run per
// process; a second Start is a no-op.
func (s *Supervisor) Start(ctx context.Context) bool {
	if !supervisorRunning.CompareAndSwap(false, true) {
		logger.Warn().Msg("supervisor already running, ignoring start")
		return false
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.run(ctx)
	go s.staleSweepLoop(ctx)

	logger.Info().
		Dur("startDelay", s.cfg.StartDelay).
		Int("batchSize", s.cfg.BatchSize).
		Msg("digest supervisor started")
	return true
}

// Stop cancels the loops and waits for them to drain
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	supervisorRunning.Store(false)
	logger.Info().Msg("digest supervisor stopped")
}

// Notify pushes a changed file at the supervisor. With reset true the
// file's digest state is invalidated before reprocessing. Drops the event
// when the queue is full; the polling loop will pick the file up anyway.
func (s *Supervisor) Notify(filePath string, reset bool) {
	select {
	case s.changes <- changeRequest{filePath: filePath, reset: reset}:
	default:
		logger.Warn().Str("path", filePath).Msg("change queue full, dropping event")
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	if !sleepCtx(ctx, s.cfg.StartDelay) {
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.FailureBaseDelay
	bo.MaxInterval = s.cfg.FailureMaxDelay
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.changes:
			if s.handle(ctx, req.filePath, req.reset) {
				bo.Reset()
			} else if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
		default:
			worked, ok := s.pollOnce(ctx, bo)
			if !ok {
				return
			}
			if !worked {
				if !sleepCtx(ctx, s.cfg.IdleSleep) {
					return
				}
			}
		}
	}
}

// pollOnce picks one batch of pending files and processes them. Returns
// worked=false when the catalog had nothing to do.
func (s *Supervisor) pollOnce(ctx context.Context, bo backoff.BackOff) (worked, ok bool) {
	paths, err := s.store.FilesNeedingDigest(
		s.cfg.BatchSize,
		s.registry.AllOutputNames(),
		s.cfg.ExcludedPrefixes,
		s.cfg.MaxAttempts,
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to query pending files")
		return false, sleepCtx(ctx, bo.NextBackOff())
	}
	if len(paths) == 0 {
		return false, true
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return true, false
		default:
		}

		if s.handle(ctx, path, false) {
			bo.Reset()
		} else if !sleepCtx(ctx, bo.NextBackOff()) {
			return true, false
		}

		if !sleepCtx(ctx, s.cfg.FileDelay) {
			return true, false
		}
	}
	return true, true
}

// handle processes one file, reporting success for backoff bookkeeping.
// Digester failures are swallowed by the coordinator into the result, so
// a file whose digesters keep failing still slows the loop down.
func (s *Supervisor) handle(ctx context.Context, filePath string, reset bool) bool {
	result, err := s.coordinator.ProcessFile(ctx, filePath, reset)
	if err != nil {
		logger.Error().Err(err).Str("path", filePath).Msg("file processing failed")
		return false
	}
	return result.Failed == 0
}

// staleSweepLoop periodically recovers rows and locks abandoned by a
// crashed worker
func (s *Supervisor) staleSweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StaleSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			thresholdMs := s.cfg.StaleThreshold.Milliseconds()

			if n, err := s.store.ResetStaleInProgress(thresholdMs); err != nil {
				logger.Error().Err(err).Msg("stale digest sweep failed")
			} else if n > 0 {
				logger.Info().Int64("rows", n).Msg("reset stale in-progress digests")
			}

			if n, err := s.store.ReleaseStaleLocks(thresholdMs); err != nil {
				logger.Error().Err(err).Msg("stale lock sweep failed")
			} else if n > 0 {
				logger.Info().Int64("locks", n).Msg("released stale file locks")
			}
		}
	}
}

// sleepCtx sleeps for d, returning false when the context ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
