package controller

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/RyanSquared/k8s-ares/api/v1alpha1"
	"github.com/RyanSquared/k8s-ares/internal/collector"
	"github.com/RyanSquared/k8s-ares/internal/dns"
	"github.com/RyanSquared/k8s-ares/internal/metrics"
)

// Retry pacing between failed reconcile attempts. A failing provider would
// otherwise be hammered in a tight loop.
const (
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Minute
)

// ReconcileLoop is the per-record task: resolve the zone, run a full sync,
// then watch until the value source or the Record changes. A Record change
// adopts the new snapshot and starts the cycle over; any failure restarts
// the cycle from zone resolution after a backoff. The loop runs until the
// Record is deleted or the context is cancelled.
type ReconcileLoop struct {
	Record       *v1alpha1.Record
	Provider     dns.Provider
	NewCollector func(*v1alpha1.Record) (collector.Collector, error)
	Log          logr.Logger

	// InitialBackoff and MaxBackoff override the retry pacing; zero
	// values use the defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Run drives the reconcile cycle. Failures are logged, not returned: one
// record's trouble must not take down its siblings. The only exits are
// record deletion and context cancellation.
func (l *ReconcileLoop) Run(ctx context.Context) error {
	initial, limit := l.InitialBackoff, l.MaxBackoff
	if initial <= 0 {
		initial = initialBackoff
	}
	if limit <= 0 {
		limit = maxBackoff
	}

	record := l.Record
	backoff := initial

	for {
		snapshot, err := l.runOnce(ctx, record)
		switch {
		case err == nil:
			// Refreshed: adopt the new snapshot and re-resolve.
			l.Log.Info("record changed, restarting cycle", "resourceVersion", snapshot.ResourceVersion)
			record = snapshot
			backoff = initial
			continue
		case errors.Is(err, collector.ErrRecordDeleted):
			l.Log.Info("record deleted, stopping task")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		l.Log.Error(err, "reconcile attempt failed", "retryIn", backoff.String())
		metrics.TaskRestarts.WithLabelValues(record.Spec.FQDN).Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > limit {
			backoff = limit
		}
	}
}

// runOnce is one Init → Sync → Watching pass. It returns the refreshed
// Record snapshot when the watched resource changed, or the failure that
// ended the attempt.
func (l *ReconcileLoop) runOnce(ctx context.Context, record *v1alpha1.Record) (*v1alpha1.Record, error) {
	coll, err := l.NewCollector(record)
	if err != nil {
		return nil, err
	}

	l.Log.V(1).Info("resolving zone")
	zone, err := l.Provider.GetZone(ctx, record.Spec.FQDN)
	if err != nil {
		return nil, err
	}

	builder := dns.NewBuilder(record.Spec.FQDN, zone, recordType(record)).WithTTL(recordTTL(record))

	l.Log.Info("syncing", "zone", zone)
	metrics.SyncCycles.WithLabelValues(record.Spec.FQDN).Inc()
	if err := coll.Sync(ctx, l.Provider, builder); err != nil {
		return nil, err
	}

	l.Log.V(1).Info("watching")
	return coll.WatchValues(ctx, l.Provider, builder)
}

func recordType(record *v1alpha1.Record) dns.RecordType {
	if record.Spec.Type == "" {
		return dns.TypeA
	}
	return dns.RecordType(record.Spec.Type)
}

// recordTTL falls back to 1, which Cloudflare reads as "automatic".
func recordTTL(record *v1alpha1.Record) int64 {
	if record.Spec.TTL <= 0 {
		return 1
	}
	return record.Spec.TTL
}
