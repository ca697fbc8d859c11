package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	appbanking "github.com/fintrack/backend/internal/application/banking"
	"github.com/fintrack/backend/internal/domain/banking"
)

// SyncMetrics records sync run telemetry: run counts by provider and outcome,
// run duration, and transaction import volumes.
type SyncMetrics struct {
	syncTotal           metric.Int64Counter
	syncDuration        metric.Float64Histogram
	transactionsCreated metric.Int64Counter
	transactionsSkipped metric.Int64Counter
}

// NewSyncMetrics creates the sync metric instruments on the given meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	sm := &SyncMetrics{}
	var err error

	sm.syncTotal, err = meter.Int64Counter(
		"fintrack_sync_total",
		metric.WithDescription("Total number of sync runs"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	sm.syncDuration, err = meter.Float64Histogram(
		"fintrack_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sm.transactionsCreated, err = meter.Int64Counter(
		"fintrack_sync_transactions_created_total",
		metric.WithDescription("Total transactions imported by sync runs"),
		metric.WithUnit("{transactions}"),
	)
	if err != nil {
		return nil, err
	}

	sm.transactionsSkipped, err = meter.Int64Counter(
		"fintrack_sync_transactions_skipped_total",
		metric.WithDescription("Total fetched transactions skipped as duplicates or pending"),
		metric.WithUnit("{transactions}"),
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordSync records the result of one sync run
func (m *SyncMetrics) RecordSync(ctx context.Context, provider string, outcome banking.SyncOutcome, duration time.Duration, created, skipped int) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", string(outcome)),
	)

	m.syncTotal.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
	if created > 0 {
		m.transactionsCreated.Add(ctx, int64(created), attrs)
	}
	if skipped > 0 {
		m.transactionsSkipped.Add(ctx, int64(skipped), attrs)
	}
}

// Ensure SyncMetrics satisfies the orchestrator's recorder port
var _ appbanking.SyncMetrics = (*SyncMetrics)(nil)
