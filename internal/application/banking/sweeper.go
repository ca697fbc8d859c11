package banking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
)

// SweepConfig tunes the connection sweeper
type SweepConfig struct {
	// PendingWindow is how long a PENDING connection may wait for the user
	// to finish the OAuth flow before it is revoked
	PendingWindow time.Duration
	// BatchSize bounds how many connections one sweep pass touches
	BatchSize int
}

// DefaultSweepConfig returns production defaults
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PendingWindow: 24 * time.Hour,
		BatchSize:     100,
	}
}

// ConnectionSweeper retires connections nobody will ever sync again: stale
// PENDING link attempts and connections whose provider consent has lapsed.
// Runs periodically from the scheduler.
type ConnectionSweeper struct {
	connRepo       banking.ConnectionRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	cfg            SweepConfig
}

// NewConnectionSweeper creates a new ConnectionSweeper
func NewConnectionSweeper(connRepo banking.ConnectionRepository, cfg SweepConfig, logger *zap.Logger) *ConnectionSweeper {
	if cfg.PendingWindow <= 0 {
		cfg = DefaultSweepConfig()
	}
	return &ConnectionSweeper{
		connRepo: connRepo,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *ConnectionSweeper) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SweepStalePending revokes PENDING connections whose OAuth flow was never
// completed within the window. Returns how many were revoked.
func (s *ConnectionSweeper) SweepStalePending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.PendingWindow)
	conns, err := s.connRepo.FindPendingBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, conn := range conns {
		if err := conn.Revoke(); err != nil {
			s.logger.Warn("failed to revoke stale pending connection",
				zap.String("connection_id", conn.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return swept, err
		}
		s.publishEvents(ctx, conn)
		swept++
	}

	if swept > 0 {
		s.logger.Info("swept stale pending connections", zap.Int("count", swept))
	}
	return swept, nil
}

// SweepLapsedConsents expires connections whose provider consent ran out.
// Returns how many were expired.
func (s *ConnectionSweeper) SweepLapsedConsents(ctx context.Context) (int, error) {
	conns, err := s.connRepo.FindConsentLapsed(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, conn := range conns {
		if err := conn.Expire(); err != nil {
			s.logger.Warn("failed to expire connection with lapsed consent",
				zap.String("connection_id", conn.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return swept, err
		}
		s.publishEvents(ctx, conn)
		swept++
	}

	if swept > 0 {
		s.logger.Info("swept lapsed consents", zap.Int("count", swept))
	}
	return swept, nil
}

func (s *ConnectionSweeper) publishEvents(ctx context.Context, conn *banking.BankingConnection) {
	if s.eventPublisher == nil {
		conn.ClearDomainEvents()
		return
	}
	for _, event := range conn.GetDomainEvents() {
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
	}
	conn.ClearDomainEvents()
}
