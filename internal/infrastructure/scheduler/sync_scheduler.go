package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fintrack/backend/internal/domain/banking"
)

// SyncExecutor runs one sync for a connection. The executor is expected to
// hold its own per-connection lease, so a connection queued twice results in
// one run and one fast ErrSyncAlreadyInProgress.
type SyncExecutor interface {
	Sync(ctx context.Context, connectionID uuid.UUID) (*banking.SyncResult, error)
}

// Sweeper runs the periodic connection hygiene passes
type Sweeper interface {
	SweepStalePending(ctx context.Context) (int, error)
	SweepLapsedConsents(ctx context.Context) (int, error)
}

// DueConnectionFinder lists connections whose last sync is older than the cutoff
type DueConnectionFinder interface {
	FindSyncDue(ctx context.Context, cutoff time.Time, limit int) ([]*banking.BankingConnection, error)
}

// Config holds background scheduler settings
type Config struct {
	// Enabled disables the scheduler entirely when false
	Enabled bool
	// SweepInterval is how often the sweeper passes run
	SweepInterval time.Duration
	// SyncInterval is how often a connection becomes due for a refresh;
	// zero disables periodic syncs while keeping the sweeps
	SyncInterval time.Duration
	// MaxConcurrentSyncs is the sync worker pool size
	MaxConcurrentSyncs int
	// QueueSize is the sync queue capacity
	QueueSize int
	// BatchSize caps how many due connections one pass enqueues
	BatchSize int
}

// DefaultConfig returns default scheduler settings
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		SweepInterval:      15 * time.Minute,
		SyncInterval:       6 * time.Hour,
		MaxConcurrentSyncs: 3,
		QueueSize:          100,
		BatchSize:          50,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SweepInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.SyncInterval < 0 {
		return ErrInvalidConfig
	}
	if c.MaxConcurrentSyncs <= 0 || c.QueueSize <= 0 || c.BatchSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SyncScheduler drives the background half of the orchestrator: it runs the
// sweeper passes on a fixed interval and feeds due connections into a sync
// worker pool. The per-connection lease in the executor keeps a slow run and
// the next tick from syncing the same connection twice.
type SyncScheduler struct {
	config   Config
	executor SyncExecutor
	sweeper  Sweeper
	finder   DueConnectionFinder
	logger   *zap.Logger

	jobs      chan uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config Config, executor SyncExecutor, sweeper Sweeper, finder DueConnectionFinder, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:   config,
		executor: executor,
		sweeper:  sweeper,
		finder:   finder,
		logger:   logger,
		jobs:     make(chan uuid.UUID, config.QueueSize),
	}, nil
}

// Start starts the worker pool and the periodic loops
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentSyncs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	if s.config.SyncInterval > 0 {
		s.wg.Add(1)
		go s.syncLoop(ctx)
	}

	s.logger.Info("sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentSyncs),
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("sync_interval", s.config.SyncInterval),
	)
	return nil
}

// Stop signals the loops and waits for in-flight syncs to finish
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitSync queues one connection for a sync
func (s *SyncScheduler) SubmitSync(connectionID uuid.UUID) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- connectionID:
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker drains the sync queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case connectionID := <-s.jobs:
			s.runSync(ctx, workerID, connectionID)
		}
	}
}

// runSync executes one queued sync
func (s *SyncScheduler) runSync(ctx context.Context, workerID int, connectionID uuid.UUID) {
	result, err := s.executor.Sync(ctx, connectionID)
	switch {
	case errors.Is(err, banking.ErrSyncAlreadyInProgress):
		s.logger.Debug("connection already syncing, skipped",
			zap.Int("worker_id", workerID),
			zap.String("connection_id", connectionID.String()),
		)
	case err != nil:
		s.logger.Error("scheduled sync failed",
			zap.Int("worker_id", workerID),
			zap.String("connection_id", connectionID.String()),
			zap.Error(err),
		)
	default:
		s.logger.Info("scheduled sync finished",
			zap.Int("worker_id", workerID),
			zap.String("connection_id", connectionID.String()),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("transactions_created", result.TransactionsCreated),
			zap.Int("transactions_skipped", result.TransactionsSkipped),
		)
	}
}

// sweepLoop runs the hygiene passes on every tick
func (s *SyncScheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweeps(ctx)
		}
	}
}

// runSweeps expires stale PENDING links and lapsed consents
func (s *SyncScheduler) runSweeps(ctx context.Context) {
	stale, err := s.sweeper.SweepStalePending(ctx)
	if err != nil {
		s.logger.Error("stale pending sweep failed", zap.Error(err))
	}

	lapsed, err := s.sweeper.SweepLapsedConsents(ctx)
	if err != nil {
		s.logger.Error("lapsed consent sweep failed", zap.Error(err))
	}

	if stale > 0 || lapsed > 0 {
		s.logger.Info("sweep pass finished",
			zap.Int("stale_pending_expired", stale),
			zap.Int("lapsed_consents_expired", lapsed),
		)
	}
}

// syncLoop enqueues due connections on every tick
func (s *SyncScheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueDue(ctx)
		}
	}
}

// enqueueDue finds connections past their refresh cutoff and queues them
func (s *SyncScheduler) enqueueDue(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.SyncInterval)
	due, err := s.finder.FindSyncDue(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list due connections", zap.Error(err))
		return
	}

	queued := 0
	for _, conn := range due {
		if err := s.SubmitSync(conn.ID); err != nil {
			s.logger.Warn("could not queue due connection",
				zap.String("connection_id", conn.ID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Info("due connections queued", zap.Int("count", queued))
	}
}
