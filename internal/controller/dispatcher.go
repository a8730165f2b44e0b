// Package controller pairs configuration entries with managed records and
// runs one reconcile task per pair.
package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/RyanSquared/k8s-ares/api/v1alpha1"
	"github.com/RyanSquared/k8s-ares/internal/collector"
	"github.com/RyanSquared/k8s-ares/internal/config"
	"github.com/RyanSquared/k8s-ares/internal/dns"
)

// Dispatcher matches configuration selectors against the Record list and
// spawns a ReconcileLoop per match, scoped to the entry's provider.
type Dispatcher struct {
	Clientset kubernetes.Interface
	Records   client.WithWatch
	Log       logr.Logger
}

// Run lists the Record resources, pairs them with configs, and blocks until
// every spawned task has finished (record deletion or context cancellation).
func (d *Dispatcher) Run(ctx context.Context, configs []config.AresConfig) error {
	var list v1alpha1.RecordList
	if err := d.Records.List(ctx, &list); err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, cfg := range configs {
		provider, err := dns.NewProvider(cfg.Provider, d.Log.WithName("dns-"+cfg.Provider), cfg.ProviderOptions)
		if err != nil {
			return fmt.Errorf("creating provider %q: %w", cfg.Provider, err)
		}

		for i := range list.Items {
			record := &list.Items[i]
			if !cfg.MatchesSelector(record.Spec.FQDN) {
				continue
			}

			log := d.Log.WithValues("record", record.Spec.FQDN, "namespace", record.Namespace)
			loop := &ReconcileLoop{
				Record:   record,
				Provider: provider,
				NewCollector: func(r *v1alpha1.Record) (collector.Collector, error) {
					return collector.For(r, collector.Deps{
						Clientset: d.Clientset,
						Records:   d.Records,
						Log:       log,
					})
				},
				Log: log,
			}
			log.Info("spawning reconcile task", "provider", cfg.Provider)
			g.Go(func() error {
				return loop.Run(ctx)
			})
		}
	}

	return g.Wait()
}
