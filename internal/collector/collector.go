// Package collector produces the desired value set for a managed record from
// cluster state and watches that state for changes.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/RyanSquared/k8s-ares/api/v1alpha1"
	"github.com/RyanSquared/k8s-ares/internal/dns"
)

// ErrRecordDeleted is returned by WatchValues when the managed Record
// resource itself is deleted; the owning task should stop.
var ErrRecordDeleted = errors.New("collector: record deleted")

// Collector turns a dynamic object set into the desired value set for one
// managed record, and watches for future changes.
type Collector interface {
	// GetValues returns the current desired values, sorted.
	GetValues(ctx context.Context) ([]string, error)

	// Sync performs a full reconciliation of the remote records against
	// the current values.
	Sync(ctx context.Context, provider dns.Provider, builder dns.Builder) error

	// WatchValues watches the value source and the Record resource,
	// applying incremental record changes as the value set shifts. It
	// returns a fresh Record snapshot when the resource is modified, so
	// the caller can adopt it and restart, or an error (ErrRecordDeleted
	// on resource deletion, otherwise a stream or provider failure).
	WatchValues(ctx context.Context, provider dns.Provider, builder dns.Builder) (*v1alpha1.Record, error)
}

// Deps carries the collaborators collectors are built from.
type Deps struct {
	Clientset kubernetes.Interface
	Records   client.WithWatch
	Log       logr.Logger
}

// For returns the Collector for the record's value source. Exactly one of
// spec.value and spec.valueFrom must be set.
func For(record *v1alpha1.Record, deps Deps) (Collector, error) {
	hasValue := len(record.Spec.Value) > 0
	hasFrom := record.Spec.ValueFrom != nil
	switch {
	case hasValue && hasFrom:
		return nil, fmt.Errorf("record %s/%s: value and valueFrom are mutually exclusive", record.Namespace, record.Name)
	case hasFrom:
		if record.Spec.ValueFrom.PodSelector == nil {
			return nil, fmt.Errorf("record %s/%s: valueFrom has no recognized source", record.Namespace, record.Name)
		}
		return &PodCollector{
			Clientset: deps.Clientset,
			Records:   deps.Records,
			Record:    record,
			Log:       deps.Log,
		}, nil
	case hasValue:
		return &Static{
			Records: deps.Records,
			Record:  record,
			Log:     deps.Log,
		}, nil
	default:
		return nil, fmt.Errorf("record %s/%s: one of value or valueFrom must be set", record.Namespace, record.Name)
	}
}

// handleRecordEvent interprets one event from the managed-record watch
// stream. It returns a non-nil snapshot when the watched record was modified
// (or re-added with a newer resource version) and the caller should refresh;
// ErrRecordDeleted when it was deleted; and (nil, nil) for events to ignore.
func handleRecordEvent(ev watch.Event, current *v1alpha1.Record) (*v1alpha1.Record, error) {
	switch ev.Type {
	case watch.Added:
		rec, ok := ev.Object.(*v1alpha1.Record)
		if !ok {
			return nil, nil
		}
		// The record can be re-listed as Added with changes that
		// happened between listing and starting the watch.
		if rec.UID == current.UID && rec.ResourceVersion != current.ResourceVersion {
			return rec, nil
		}
	case watch.Modified:
		rec, ok := ev.Object.(*v1alpha1.Record)
		if !ok {
			return nil, nil
		}
		if rec.UID == current.UID {
			return rec, nil
		}
	case watch.Deleted:
		rec, ok := ev.Object.(*v1alpha1.Record)
		if !ok {
			return nil, nil
		}
		if rec.UID == current.UID {
			return nil, ErrRecordDeleted
		}
	case watch.Error:
		return nil, fmt.Errorf("record watch: %w", apierrors.FromObject(ev.Object))
	case watch.Bookmark:
	}
	return nil, nil
}

// sorted returns a sorted copy of values.
func sorted(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

// Static serves records whose values are pinned in the Record spec. It has no value
// source to watch, so WatchValues only follows the Record resource.
type Static struct {
	Records client.WithWatch
	Record  *v1alpha1.Record
	Log     logr.Logger
}

// GetValues returns the sorted static values.
func (s *Static) GetValues(_ context.Context) ([]string, error) {
	return sorted(s.Record.Spec.Value), nil
}

// Sync reconciles the remote records with the static values.
func (s *Static) Sync(ctx context.Context, provider dns.Provider, builder dns.Builder) error {
	values, err := s.GetValues(ctx)
	if err != nil {
		return err
	}
	return dns.SyncRecords(ctx, provider, builder, values)
}

// WatchValues waits for the Record resource to change.
func (s *Static) WatchValues(ctx context.Context, _ dns.Provider, _ dns.Builder) (*v1alpha1.Record, error) {
	var list v1alpha1.RecordList
	recordWatch, err := s.Records.Watch(ctx, &list, client.InNamespace(s.Record.Namespace))
	if err != nil {
		return nil, fmt.Errorf("watching records: %w", err)
	}
	defer recordWatch.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-recordWatch.ResultChan():
			if !ok {
				return nil, fmt.Errorf("record watch stream closed")
			}
			snapshot, err := handleRecordEvent(ev, s.Record)
			if err != nil {
				return nil, err
			}
			if snapshot != nil {
				return snapshot, nil
			}
		}
	}
}
