package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
)

// SyncMetrics records sync telemetry. Implemented by the telemetry package;
// a nil recorder disables instrumentation.
type SyncMetrics interface {
	RecordSync(ctx context.Context, provider string, outcome banking.SyncOutcome, duration time.Duration, created, skipped int)
}

// SyncConfig tunes the orchestrator
type SyncConfig struct {
	// Timeout bounds one whole sync run; an overrun aborts with FAILURE
	Timeout time.Duration
	// LockTTL is the lease duration of the per-connection lock. Must exceed
	// Timeout so a live run never loses its lease.
	LockTTL time.Duration
	// LookbackOverlap is subtracted from LastSyncedAt when computing the
	// fetch window, so late-booked transactions near the boundary are not
	// missed. Dedup makes the overlap harmless.
	LookbackOverlap time.Duration
	// InitialLookback is the fetch window for a connection's first sync
	InitialLookback time.Duration
}

// DefaultSyncConfig returns production defaults
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Timeout:         5 * time.Minute,
		LockTTL:         6 * time.Minute,
		LookbackOverlap: 3 * 24 * time.Hour,
		InitialLookback: 90 * 24 * time.Hour,
	}
}

// fetch error code used when a single account's transaction fetch fails
const accountErrFetchFailed = "FETCH_FAILED"

// SyncOrchestrator drives one full sync run: fetch from the provider,
// reconcile against local state, persist the change-set atomically and record
// the outcome. Runs for the same connection are serialized by a lease lock;
// concurrent attempts fail fast instead of queueing.
type SyncOrchestrator struct {
	connRepo       banking.ConnectionRepository
	linkedRepo     banking.LinkedAccountRepository
	syncLogRepo    banking.SyncLogRepository
	refRepo        banking.ExternalTransactionRefRepository
	providers      banking.ProviderRegistry
	lock           banking.SyncLock
	uow            banking.UnitOfWork
	reconciler     *banking.Reconciler
	eventPublisher shared.EventPublisher
	metrics        SyncMetrics
	logger         *zap.Logger
	cfg            SyncConfig
}

// NewSyncOrchestrator creates a new SyncOrchestrator
func NewSyncOrchestrator(
	connRepo banking.ConnectionRepository,
	linkedRepo banking.LinkedAccountRepository,
	syncLogRepo banking.SyncLogRepository,
	refRepo banking.ExternalTransactionRefRepository,
	providers banking.ProviderRegistry,
	lock banking.SyncLock,
	uow banking.UnitOfWork,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncOrchestrator {
	if cfg.Timeout <= 0 {
		cfg = DefaultSyncConfig()
	}
	return &SyncOrchestrator{
		connRepo:    connRepo,
		linkedRepo:  linkedRepo,
		syncLogRepo: syncLogRepo,
		refRepo:     refRepo,
		providers:   providers,
		lock:        lock,
		uow:         uow,
		reconciler:  banking.NewReconciler(),
		logger:      logger,
		cfg:         cfg,
	}
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *SyncOrchestrator) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the sync metrics recorder
func (s *SyncOrchestrator) SetMetrics(metrics SyncMetrics) {
	s.metrics = metrics
}

// SyncConnection runs a sync for a connection owned by the caller
func (s *SyncOrchestrator) SyncConnection(ctx context.Context, owner banking.Owner, connectionID uuid.UUID) (*banking.SyncResult, error) {
	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Owner.Equals(owner) {
		return nil, banking.ErrConnectionNotFound
	}
	return s.sync(ctx, conn)
}

// Sync runs a sync without an ownership check. For internal callers such as
// the scheduler.
func (s *SyncOrchestrator) Sync(ctx context.Context, connectionID uuid.UUID) (*banking.SyncResult, error) {
	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, conn)
}

// sync is the run skeleton: guards, lock, timeout, audit record, then the
// fetch/reconcile/apply pipeline.
func (s *SyncOrchestrator) sync(ctx context.Context, conn *banking.BankingConnection) (*banking.SyncResult, error) {
	// AUTHORIZED is allowed through for the initial sync that activates the
	// connection on its first successful account listing
	if !conn.Status.IsSyncable() && conn.Status != banking.ConnectionStatusAuthorized {
		return nil, fmt.Errorf("%w: %s", banking.ErrConnectionNotSyncable, conn.Status)
	}

	now := time.Now()
	if conn.ConsentLapsed(now) {
		if err := conn.Expire(); err != nil {
			return nil, err
		}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, conn)
		return nil, banking.ErrConnectionExpired
	}

	release, err := s.lock.Acquire(ctx, conn.ID, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release sync lock",
				zap.String("connection_id", conn.ID.String()),
				zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	syncLog := banking.NewSyncLog(conn.ID)
	if err := s.syncLogRepo.Create(ctx, syncLog); err != nil {
		return nil, err
	}

	started := time.Now()
	connSnap := *conn
	logSnap := *syncLog
	result, err := s.run(ctx, conn, syncLog)
	if err != nil {
		// A failed run rolled back its transaction, so the in-memory
		// aggregate and log must not keep mutations the database discarded.
		// Resetting them lets the failure path record FAILURE on a log that
		// is still IN_PROGRESS.
		*conn = connSnap
		*syncLog = logSnap
		result = s.finalizeFailure(ctx, conn, syncLog, err)
	}

	if s.metrics != nil {
		s.metrics.RecordSync(context.WithoutCancel(ctx), conn.Provider.String(), result.Outcome,
			time.Since(started), result.TransactionsCreated, result.TransactionsSkipped)
	}
	s.publishEvents(ctx, conn)
	if s.eventPublisher != nil && result.Outcome.IsFinal() {
		if pubErr := s.eventPublisher.Publish(ctx, banking.NewSyncCompletedEvent(syncLog)); pubErr != nil {
			s.logger.Warn("failed to publish sync completed event", zap.Error(pubErr))
		}
	}

	if err != nil {
		return result, err
	}
	return result, nil
}

// run executes the fetch/reconcile/apply pipeline under the held lock
func (s *SyncOrchestrator) run(ctx context.Context, conn *banking.BankingConnection, syncLog *banking.SyncLog) (*banking.SyncResult, error) {
	if conn.ExternalConnectionID == nil {
		return nil, banking.ErrProviderInvalidResponse
	}
	provider, err := s.providers.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	accounts, err := provider.ListAccounts(ctx, *conn.ExternalConnectionID)
	if err != nil {
		return nil, err
	}

	if conn.Status == banking.ConnectionStatusAuthorized {
		if err := conn.Activate(); err != nil {
			return nil, err
		}
	}

	since := s.fetchWindowStart(conn)
	batches := make([]banking.AccountBatch, 0, len(accounts))
	var fetchErrors []banking.AccountError

	for _, account := range accounts {
		batch := banking.AccountBatch{Account: account}
		pager := provider.FetchTransactions(ctx, account.ExternalAccountID, since, "")
		failed := false
		for {
			page, more, err := pager.Next(ctx)
			if err != nil {
				if isProviderFatal(err) || ctx.Err() != nil {
					return nil, err
				}
				// one account's fetch failing does not sink the run
				fetchErrors = append(fetchErrors, banking.AccountError{
					ExternalAccountID: account.ExternalAccountID,
					Code:              accountErrFetchFailed,
					Message:           err.Error(),
				})
				s.logger.Warn("transaction fetch failed for account",
					zap.String("connection_id", conn.ID.String()),
					zap.String("external_account_id", account.ExternalAccountID),
					zap.String("cursor", pager.Cursor()),
					zap.Error(err))
				failed = true
				break
			}
			batch.Transactions = append(batch.Transactions, page...)
			if !more {
				break
			}
		}
		if !failed {
			batches = append(batches, batch)
		}
	}

	snapshot, err := s.loadSnapshot(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	changeSet := s.reconciler.Reconcile(snapshot, batches)
	changeSet.AccountErrors = append(changeSet.AccountErrors, fetchErrors...)
	for _, warning := range changeSet.Warnings {
		s.logger.Warn("sync data quality issue",
			zap.String("connection_id", conn.ID.String()),
			zap.String("detail", warning))
	}

	outcome := changeSet.Outcome()
	var partialErr *banking.SyncError
	if outcome == banking.SyncOutcomePartial {
		partialErr = &banking.SyncError{
			Code: "PARTIAL_SYNC",
			Message: fmt.Sprintf("%d of %d accounts failed to sync",
				len(changeSet.AccountErrors), len(accounts)),
			OccurredAt: time.Now(),
		}
	}

	created, err := s.apply(ctx, conn, syncLog, changeSet, outcome, partialErr)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sync completed",
		zap.String("connection_id", conn.ID.String()),
		zap.String("outcome", outcome.String()),
		zap.Int("accounts_processed", changeSet.AccountsProcessed),
		zap.Int("transactions_created", created),
		zap.Int("transactions_skipped", changeSet.Skipped()))

	return &banking.SyncResult{
		SyncLogID:           syncLog.ID,
		Outcome:             outcome,
		AccountsProcessed:   changeSet.AccountsProcessed,
		AccountsFailed:      len(changeSet.AccountErrors),
		TransactionsCreated: created,
		TransactionsSkipped: changeSet.Skipped(),
		Error:               partialErr,
	}, nil
}

// apply persists the change-set, the connection state and the finalized log
// in one database transaction. Either the whole run lands or none of it does;
// a transaction can never be committed without its dedup ref.
func (s *SyncOrchestrator) apply(
	ctx context.Context,
	conn *banking.BankingConnection,
	syncLog *banking.SyncLog,
	changeSet *banking.ChangeSet,
	outcome banking.SyncOutcome,
	partialErr *banking.SyncError,
) (int, error) {
	now := time.Now()
	created := 0

	err := s.uow.Execute(ctx, func(ctx context.Context, repos banking.TxRepositories) error {
		// accounts discovered this run, keyed by external ID
		newLocalIDs := make(map[string]uuid.UUID, len(changeSet.AccountCreates))

		for _, op := range changeSet.AccountCreates {
			localID, err := repos.Ledger.CreateAccount(ctx, conn.Owner, op.External.Name, op.External.Currency, op.External.Balance)
			if err != nil {
				return err
			}
			linked := banking.NewLinkedAccount(conn.ID, localID, op.External)
			linked.ApplyBalance(op.External.Balance, now)
			if err := repos.LinkedAccounts.Save(ctx, linked); err != nil {
				return err
			}
			newLocalIDs[op.External.ExternalAccountID] = localID
		}

		for _, op := range changeSet.BalanceUpdates {
			if err := repos.Ledger.UpdateAccountBalance(ctx, op.LocalAccountID, op.Balance); err != nil {
				return err
			}
			linked, err := repos.LinkedAccounts.FindByID(ctx, op.LinkedAccountID)
			if err != nil {
				return err
			}
			linked.ApplyBalance(op.Balance, now)
			if err := repos.LinkedAccounts.Save(ctx, linked); err != nil {
				return err
			}
		}

		refs := make([]banking.ExternalTransactionRef, 0, len(changeSet.TransactionCreates))
		for _, op := range changeSet.TransactionCreates {
			localAccountID := op.LocalAccountID
			if localAccountID == uuid.Nil {
				id, ok := newLocalIDs[op.ExternalAccountID]
				if !ok {
					return fmt.Errorf("banking: no local account for external account %s", op.ExternalAccountID)
				}
				localAccountID = id
			}
			txID, err := repos.Ledger.CreateTransaction(ctx, localAccountID, op.External)
			if err != nil {
				return err
			}
			refs = append(refs, banking.ExternalTransactionRef{
				LocalAccountID:        localAccountID,
				ExternalTransactionID: op.External.ExternalTransactionID,
				LocalTransactionID:    txID,
				CreatedAt:             now,
			})
			created++
		}
		if len(refs) > 0 {
			if err := repos.Refs.CreateBatch(ctx, refs); err != nil {
				return err
			}
		}

		if err := conn.MarkSynced(now, partialErr); err != nil {
			return err
		}
		if err := repos.Connections.Save(ctx, conn); err != nil {
			return err
		}
		if err := syncLog.Finalize(outcome, changeSet.AccountsProcessed, created, changeSet.Skipped(), partialErr); err != nil {
			return err
		}
		return repos.SyncLogs.Update(ctx, syncLog)
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// finalizeFailure records a total failure: nothing from the run was
// committed, the log becomes FAILURE and the connection moves to ERROR (or
// EXPIRED when the provider reported a lapsed consent).
func (s *SyncOrchestrator) finalizeFailure(ctx context.Context, conn *banking.BankingConnection, syncLog *banking.SyncLog, runErr error) *banking.SyncResult {
	// the run context may already be past its deadline
	ctx = context.WithoutCancel(ctx)
	syncErr := banking.NewSyncError(runErr)

	switch {
	case errors.Is(runErr, banking.ErrConnectionExpired):
		if err := conn.Expire(); err != nil {
			s.logger.Error("failed to expire connection", zap.Error(err))
		}
	case conn.Status.IsSyncable():
		if err := conn.MarkSyncFailed(syncErr); err != nil {
			s.logger.Error("failed to mark sync failure", zap.Error(err))
		}
	}
	if err := s.connRepo.Save(ctx, conn); err != nil {
		s.logger.Error("failed to persist connection after sync failure",
			zap.String("connection_id", conn.ID.String()),
			zap.Error(err))
	}

	if err := syncLog.Finalize(banking.SyncOutcomeFailure, 0, 0, 0, syncErr); err == nil {
		if err := s.syncLogRepo.Update(ctx, syncLog); err != nil {
			s.logger.Error("failed to finalize sync log",
				zap.String("sync_log_id", syncLog.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Error("sync failed",
		zap.String("connection_id", conn.ID.String()),
		zap.String("provider", conn.Provider.String()),
		zap.String("error_code", syncErr.Code),
		zap.Error(runErr))

	return &banking.SyncResult{
		SyncLogID: syncLog.ID,
		Outcome:   banking.SyncOutcomeFailure,
		Error:     syncErr,
	}
}

// loadSnapshot reads the connection's bindings and known fingerprints. Taken
// under the lock, so it stays stable for the rest of the run.
func (s *SyncOrchestrator) loadSnapshot(ctx context.Context, connectionID uuid.UUID) (*banking.Snapshot, error) {
	linked, err := s.linkedRepo.FindByConnectionID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	localIDs := make([]uuid.UUID, len(linked))
	for i, account := range linked {
		localIDs[i] = account.LocalAccountID
	}
	var refs []banking.ExternalTransactionRef
	if len(localIDs) > 0 {
		refs, err = s.refRepo.FindByLocalAccountIDs(ctx, localIDs)
		if err != nil {
			return nil, err
		}
	}
	return banking.NewSnapshot(connectionID, linked, refs), nil
}

// fetchWindowStart computes how far back to ask the provider for transactions
func (s *SyncOrchestrator) fetchWindowStart(conn *banking.BankingConnection) time.Time {
	if conn.LastSyncedAt != nil {
		return conn.LastSyncedAt.Add(-s.cfg.LookbackOverlap)
	}
	return time.Now().Add(-s.cfg.InitialLookback)
}

// isProviderFatal reports whether an error invalidates the whole run rather
// than a single account
func isProviderFatal(err error) bool {
	return errors.Is(err, banking.ErrConnectionExpired) ||
		errors.Is(err, banking.ErrProviderAuthFailed) ||
		errors.Is(err, banking.ErrProviderUnavailable) ||
		errors.Is(err, banking.ErrProviderRateLimited)
}

func (s *SyncOrchestrator) publishEvents(ctx context.Context, conn *banking.BankingConnection) {
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
