package banking

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Reconciler input
// ---------------------------------------------------------------------------

// AccountBatch pairs one external account with the transactions fetched for it
type AccountBatch struct {
	// Account is the normalized external account
	Account ExternalAccount
	// Transactions are the fetched transactions, in provider-supplied order
	Transactions []ExternalTransaction
}

// Snapshot is the stable view of local state the reconciler diffs against.
// It must be taken under the per-connection sync lock: dedup decisions are
// only valid while no concurrent sync can insert new fingerprints.
type Snapshot struct {
	// ConnectionID is the connection being synced
	ConnectionID uuid.UUID
	// LinkedAccounts indexes existing bindings by external account ID
	LinkedAccounts map[string]*LinkedAccount
	// KnownFingerprints holds every ExternalTransactionRef fingerprint already
	// persisted for the connection's accounts
	KnownFingerprints map[Fingerprint]struct{}
}

// NewSnapshot builds a Snapshot from loaded rows
func NewSnapshot(connectionID uuid.UUID, accounts []*LinkedAccount, refs []ExternalTransactionRef) *Snapshot {
	s := &Snapshot{
		ConnectionID:      connectionID,
		LinkedAccounts:    make(map[string]*LinkedAccount, len(accounts)),
		KnownFingerprints: make(map[Fingerprint]struct{}, len(refs)),
	}
	for _, a := range accounts {
		s.LinkedAccounts[a.ExternalAccountID] = a
	}
	for _, r := range refs {
		s.KnownFingerprints[r.FingerprintOf()] = struct{}{}
	}
	return s
}

// ---------------------------------------------------------------------------
// Change-set operations
// ---------------------------------------------------------------------------

// AccountCreate asks for a new local Account plus its LinkedAccount binding
type AccountCreate struct {
	// External is the discovered account the binding is created for
	External ExternalAccount
}

// BalanceUpdate asks for a balance write on an existing linked account.
// Emitted only when the balance actually changed; no-op writes are filtered.
type BalanceUpdate struct {
	// LinkedAccountID is the binding row to update
	LinkedAccountID uuid.UUID
	// LocalAccountID is the bound account in the generic store
	LocalAccountID uuid.UUID
	// Balance is the new balance
	Balance decimal.Decimal
}

// TransactionCreate asks for a new local Transaction plus its
// ExternalTransactionRef. The two creates must be applied atomically: a
// Transaction without its Ref (or vice versa) breaks dedup on the next sync.
type TransactionCreate struct {
	// ExternalAccountID resolves the target account; for accounts created in
	// the same change-set the local ID does not exist until apply time
	ExternalAccountID string
	// LocalAccountID is the known account ID, or uuid.Nil when the account is
	// being created by this change-set
	LocalAccountID uuid.UUID
	// External is the transaction to import
	External ExternalTransaction
}

// AccountError annotates an account excluded from the change-set
type AccountError struct {
	// ExternalAccountID is the excluded account
	ExternalAccountID string
	// Code is a stable error class
	Code string
	// Message is a human-readable description
	Message string
}

// ChangeSet is the minimal set of create/update operations a sync must apply.
// It is a plain value: computing it mutates nothing.
type ChangeSet struct {
	// ConnectionID is the connection the change-set belongs to
	ConnectionID uuid.UUID
	// AccountCreates are new account bindings to create
	AccountCreates []AccountCreate
	// BalanceUpdates are balance writes for existing bindings
	BalanceUpdates []BalanceUpdate
	// TransactionCreates are transaction+ref pairs to create
	TransactionCreates []TransactionCreate
	// AccountErrors are accounts excluded from the change-set
	AccountErrors []AccountError
	// AccountsProcessed counts accounts that contributed operations
	AccountsProcessed int
	// SkippedDuplicates counts transactions dropped by fingerprint match
	SkippedDuplicates int
	// SkippedNoFingerprint counts transactions dropped for missing external IDs
	SkippedNoFingerprint int
	// Warnings carry non-fatal observations for the orchestrator to log
	Warnings []string
}

// Skipped returns the total number of transactions dropped by the run
func (cs *ChangeSet) Skipped() int {
	return cs.SkippedDuplicates + cs.SkippedNoFingerprint
}

// IsEmpty returns true when the change-set contains no operations
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.AccountCreates) == 0 && len(cs.BalanceUpdates) == 0 && len(cs.TransactionCreates) == 0
}

// Outcome derives the sync outcome: PARTIAL when some accounts were excluded,
// SUCCESS otherwise. Total failures never reach the reconciler.
func (cs *ChangeSet) Outcome() SyncOutcome {
	if len(cs.AccountErrors) > 0 {
		return SyncOutcomePartial
	}
	return SyncOutcomeSuccess
}

// ---------------------------------------------------------------------------
// Reconciler
// ---------------------------------------------------------------------------

// Error codes used in AccountError annotations
const (
	// AccountErrCurrencyMismatch marks an account whose provider currency
	// disagrees with the linked account's expected currency
	AccountErrCurrencyMismatch = "CURRENCY_MISMATCH"
)

// Reconciler computes the change-set between externally fetched data and a
// snapshot of local state. It holds no dependencies and performs no I/O, so
// it can be tested in isolation. Sync is strictly additive: transactions are
// never updated or deleted here, which preserves any local edits a user made
// to previously imported records.
type Reconciler struct{}

// NewReconciler creates a Reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile diffs the fetched batches against the snapshot.
//
// Per account: unknown external accounts yield an AccountCreate; known ones
// yield a BalanceUpdate only when the balance differs. A currency mismatch on
// a known account excludes that single account from the change-set with an
// error annotation; the rest of the batch still applies (fail partial, not
// whole-batch).
//
// Per transaction: a missing external ID is never imported (it would
// duplicate on every subsequent sync) and counts as skipped with a warning;
// a fingerprint already present in the snapshot, or already emitted earlier
// in this run, counts as a duplicate skip; everything else becomes a
// TransactionCreate.
func (r *Reconciler) Reconcile(snapshot *Snapshot, batches []AccountBatch) *ChangeSet {
	cs := &ChangeSet{ConnectionID: snapshot.ConnectionID}

	// Within-run dedup keys on the external account ID: accounts created in
	// this same run have no local ID yet, so Fingerprint cannot be used.
	type runKey struct {
		externalAccountID     string
		externalTransactionID string
	}
	seen := make(map[runKey]struct{})

	for _, batch := range batches {
		ext := batch.Account
		existing := snapshot.LinkedAccounts[ext.ExternalAccountID]

		if existing != nil && existing.Currency != ext.Currency {
			cs.AccountErrors = append(cs.AccountErrors, AccountError{
				ExternalAccountID: ext.ExternalAccountID,
				Code:              AccountErrCurrencyMismatch,
				Message: fmt.Sprintf("provider reports currency %s, linked account expects %s",
					ext.Currency, existing.Currency),
			})
			continue
		}

		var localAccountID uuid.UUID
		if existing == nil {
			cs.AccountCreates = append(cs.AccountCreates, AccountCreate{External: ext})
		} else {
			localAccountID = existing.LocalAccountID
			if !existing.CurrentBalance.Equal(ext.Balance) {
				cs.BalanceUpdates = append(cs.BalanceUpdates, BalanceUpdate{
					LinkedAccountID: existing.ID,
					LocalAccountID:  existing.LocalAccountID,
					Balance:         ext.Balance,
				})
			}
		}
		cs.AccountsProcessed++

		for _, tx := range batch.Transactions {
			if !tx.HasFingerprint() {
				cs.SkippedNoFingerprint++
				cs.Warnings = append(cs.Warnings, fmt.Sprintf(
					"account %s: transaction without external ID skipped (made_on=%s, amount=%s)",
					ext.ExternalAccountID, tx.MadeOn.Format("2006-01-02"), tx.Amount.String()))
				continue
			}

			if existing != nil {
				fp := Fingerprint{
					LocalAccountID:        localAccountID,
					ExternalTransactionID: tx.ExternalTransactionID,
				}
				if _, ok := snapshot.KnownFingerprints[fp]; ok {
					cs.SkippedDuplicates++
					continue
				}
			}
			rk := runKey{externalAccountID: ext.ExternalAccountID, externalTransactionID: tx.ExternalTransactionID}
			if _, ok := seen[rk]; ok {
				cs.SkippedDuplicates++
				continue
			}
			seen[rk] = struct{}{}

			cs.TransactionCreates = append(cs.TransactionCreates, TransactionCreate{
				ExternalAccountID: ext.ExternalAccountID,
				LocalAccountID:    localAccountID,
				External:          tx,
			})
		}
	}

	return cs
}
