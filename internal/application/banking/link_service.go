package banking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
)

// LinkService handles the connection lifecycle around the OAuth link flow:
// initiation, callback completion, listing and revocation. Syncing is the
// SyncOrchestrator's job.
type LinkService struct {
	connRepo       banking.ConnectionRepository
	linkedRepo     banking.LinkedAccountRepository
	syncLogRepo    banking.SyncLogRepository
	providers      banking.ProviderRegistry
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewLinkService creates a new LinkService
func NewLinkService(
	connRepo banking.ConnectionRepository,
	linkedRepo banking.LinkedAccountRepository,
	syncLogRepo banking.SyncLogRepository,
	providers banking.ProviderRegistry,
	logger *zap.Logger,
) *LinkService {
	return &LinkService{
		connRepo:    connRepo,
		linkedRepo:  linkedRepo,
		syncLogRepo: syncLogRepo,
		providers:   providers,
		logger:      logger,
	}
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *LinkService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// ---------------------------------------------------------------------------
// Link flow
// ---------------------------------------------------------------------------

// InitiateLink creates a PENDING connection and obtains the provider's OAuth
// consent URL. The connection is persisted even if the user never completes
// the flow; the sweeper revokes stale attempts.
func (s *LinkService) InitiateLink(ctx context.Context, owner banking.Owner, req InitiateLinkRequest) (*ConnectionResponse, error) {
	code := banking.ProviderCode(req.Provider)
	if !code.IsValid() {
		return nil, fmt.Errorf("%w: %s", banking.ErrInvalidProvider, req.Provider)
	}

	conn, err := banking.NewBankingConnection(owner, code)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(code)
	if err != nil {
		return nil, err
	}

	result, err := provider.InitiateLink(ctx, banking.InitiateLinkRequest{
		ReturnURL:      req.ReturnURL,
		OwnerReference: conn.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := conn.AttachExternalID(result.ExternalConnectionID, result.RedirectURL); err != nil {
		return nil, err
	}

	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("bank link initiated",
		zap.String("connection_id", conn.ID.String()),
		zap.String("provider", code.String()),
		zap.String("owner", owner.String()))

	s.publishEvents(ctx, conn)
	return ToConnectionResponse(conn), nil
}

// CompleteLink finalizes the OAuth flow after the provider redirected the
// user back. Safe to call twice with the same params: the provider side is
// idempotent and an already AUTHORIZED connection is returned as-is.
func (s *LinkService) CompleteLink(ctx context.Context, owner banking.Owner, connectionID uuid.UUID, params banking.CallbackParams) (*ConnectionResponse, error) {
	conn, err := s.findOwned(ctx, owner, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != banking.ConnectionStatusPending {
		// callback replay after the flow already finished
		return ToConnectionResponse(conn), nil
	}
	if conn.ExternalConnectionID == nil {
		return nil, banking.ErrProviderInvalidResponse
	}

	provider, err := s.providers.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	result, err := provider.CompleteLink(ctx, *conn.ExternalConnectionID, params)
	if err != nil {
		return nil, err
	}

	if result.Outcome == banking.LinkOutcomeDenied {
		if err := conn.Revoke(); err != nil {
			return nil, err
		}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return nil, err
		}
		s.logger.Info("bank link denied by user",
			zap.String("connection_id", conn.ID.String()))
		s.publishEvents(ctx, conn)
		return nil, banking.ErrLinkDenied
	}

	if err := conn.Authorize(result.ConsentExpiresAt); err != nil {
		return nil, err
	}
	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("bank link authorized",
		zap.String("connection_id", conn.ID.String()),
		zap.String("provider", conn.Provider.String()))

	s.publishEvents(ctx, conn)
	return ToConnectionResponse(conn), nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetConnection retrieves a connection owned by the caller
func (s *LinkService) GetConnection(ctx context.Context, owner banking.Owner, id uuid.UUID) (*ConnectionResponse, error) {
	conn, err := s.findOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return ToConnectionResponse(conn), nil
}

// ListConnections lists the caller's connections
func (s *LinkService) ListConnections(ctx context.Context, owner banking.Owner, filter banking.ConnectionFilter) ([]*ConnectionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	conns, total, err := s.connRepo.FindByOwner(ctx, owner, filter)
	if err != nil {
		return nil, 0, err
	}
	return ToConnectionResponses(conns), total, nil
}

// ListLinkedAccounts lists the account bindings of a connection
func (s *LinkService) ListLinkedAccounts(ctx context.Context, owner banking.Owner, connectionID uuid.UUID) ([]*LinkedAccountResponse, error) {
	if _, err := s.findOwned(ctx, owner, connectionID); err != nil {
		return nil, err
	}
	accounts, err := s.linkedRepo.FindByConnectionID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return ToLinkedAccountResponses(accounts), nil
}

// ListSyncLogs lists the sync history of a connection, newest first
func (s *LinkService) ListSyncLogs(ctx context.Context, owner banking.Owner, connectionID uuid.UUID, page, pageSize int) ([]*SyncLogResponse, int64, error) {
	if _, err := s.findOwned(ctx, owner, connectionID); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	logs, total, err := s.syncLogRepo.FindByConnectionID(ctx, connectionID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return ToSyncLogResponses(logs), total, nil
}

// ---------------------------------------------------------------------------
// Revocation
// ---------------------------------------------------------------------------

// RevokeConnection terminates a connection. The provider-side revocation is
// best-effort; local revocation proceeds regardless. Account bindings are
// removed while local accounts and their transactions are preserved.
func (s *LinkService) RevokeConnection(ctx context.Context, owner banking.Owner, id uuid.UUID) (*ConnectionResponse, error) {
	conn, err := s.findOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if conn.ExternalConnectionID != nil {
		provider, err := s.providers.Get(conn.Provider)
		if err == nil {
			if err := provider.Revoke(ctx, *conn.ExternalConnectionID); err != nil {
				s.logger.Warn("provider-side revocation failed",
					zap.String("connection_id", conn.ID.String()),
					zap.String("provider", conn.Provider.String()),
					zap.Error(err))
			}
		}
	}

	if err := conn.Revoke(); err != nil {
		return nil, err
	}
	if err := s.connRepo.Save(ctx, conn); err != nil {
		return nil, err
	}
	if err := s.linkedRepo.DeleteByConnectionID(ctx, conn.ID); err != nil {
		return nil, err
	}

	s.logger.Info("connection revoked",
		zap.String("connection_id", conn.ID.String()),
		zap.String("owner", owner.String()))

	s.publishEvents(ctx, conn)
	return ToConnectionResponse(conn), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// findOwned loads a connection and hides it from non-owners
func (s *LinkService) findOwned(ctx context.Context, owner banking.Owner, id uuid.UUID) (*banking.BankingConnection, error) {
	conn, err := s.connRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conn.Owner.Equals(owner) {
		return nil, banking.ErrConnectionNotFound
	}
	return conn, nil
}

func (s *LinkService) publishEvents(ctx context.Context, conn *banking.BankingConnection) {
	if s.eventPublisher == nil {
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
