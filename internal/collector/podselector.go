package collector

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/RyanSquared/k8s-ares/api/v1alpha1"
	"github.com/RyanSquared/k8s-ares/internal/dns"
)

// PodCollector derives record values from the external addresses of the
// Nodes hosting the Pods matched by the record's podSelector.
type PodCollector struct {
	Clientset kubernetes.Interface
	Records   client.WithWatch
	Record    *v1alpha1.Record
	Log       logr.Logger
}

func (c *PodCollector) selector() *v1alpha1.PodSelector {
	return c.Record.Spec.ValueFrom.PodSelector
}

// listOptions narrows the pod listing server-side with the matchLabels
// constraints. matchExpressions cannot always be expressed through the
// listing API with the semantics ares needs, so they are applied client-side
// in GetValues.
func (c *PodCollector) listOptions() metav1.ListOptions {
	return metav1.ListOptions{
		LabelSelector: labels.Set(c.selector().MatchLabels).String(),
	}
}

// GetValues queries the external IPs of the Nodes running matching Pods.
// Each node is resolved once and duplicate addresses are dropped, so several
// Pods on one Node contribute a single value. Missing node assignments or
// node addresses are errors: cluster state is eventually consistent and the
// caller is expected to retry.
func (c *PodCollector) GetValues(ctx context.Context) ([]string, error) {
	namespace := c.Record.Namespace
	if namespace == "" {
		return nil, fmt.Errorf("record %s has no namespace", c.Record.Name)
	}

	podList, err := c.Clientset.CoreV1().Pods(namespace).List(ctx, c.listOptions())
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	var ips []string
	seenNodes := make(map[string]bool)
	seenIPs := make(map[string]bool)

	for i := range podList.Items {
		pod := &podList.Items[i]
		if !MatchesAll(pod.Labels, nil, c.selector().MatchExpressions) {
			continue
		}

		nodeName := pod.Spec.NodeName
		if nodeName == "" {
			return nil, fmt.Errorf("pod %s/%s is not assigned to a node", pod.Namespace, pod.Name)
		}
		if seenNodes[nodeName] {
			continue
		}
		seenNodes[nodeName] = true

		node, err := c.Clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("getting node %s: %w", nodeName, err)
		}
		if len(node.Status.Addresses) == 0 {
			return nil, fmt.Errorf("node %s has no addresses", nodeName)
		}
		for _, addr := range node.Status.Addresses {
			if addr.Type != corev1.NodeExternalIP {
				continue
			}
			// Distinct nodes sharing a floating IP would otherwise
			// produce duplicate values.
			if !seenIPs[addr.Address] {
				seenIPs[addr.Address] = true
				ips = append(ips, addr.Address)
			}
		}
	}

	return sorted(ips), nil
}

// Sync reconciles the remote records with the current values.
func (c *PodCollector) Sync(ctx context.Context, provider dns.Provider, builder dns.Builder) error {
	values, err := c.GetValues(ctx)
	if err != nil {
		return err
	}
	return dns.SyncRecords(ctx, provider, builder, values)
}

// WatchValues watches the matched Pods and the Record resource concurrently.
// Pod churn triggers a recompute-and-diff of the value set, with one provider
// mutation per change; a change to the Record itself returns the new snapshot
// so the caller can restart its cycle with it.
func (c *PodCollector) WatchValues(ctx context.Context, provider dns.Provider, builder dns.Builder) (*v1alpha1.Record, error) {
	current, err := c.GetValues(ctx)
	if err != nil {
		return nil, err
	}

	namespace := c.Record.Namespace
	podWatch, err := c.Clientset.CoreV1().Pods(namespace).Watch(ctx, c.listOptions())
	if err != nil {
		return nil, fmt.Errorf("watching pods: %w", err)
	}
	defer podWatch.Stop()

	var list v1alpha1.RecordList
	recordWatch, err := c.Records.Watch(ctx, &list, client.InNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("watching records: %w", err)
	}
	defer recordWatch.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-podWatch.ResultChan():
			if !ok {
				return nil, fmt.Errorf("pod watch stream closed")
			}
			switch ev.Type {
			case watch.Added, watch.Deleted:
				// Always recompute the whole set rather than
				// mapping the single pod to an IP: several pods
				// can share a node, and going from two pods to
				// one must not remove the node's address.
				newValues, err := c.GetValues(ctx)
				if err != nil {
					return nil, err
				}
				if err := c.applyChanges(ctx, provider, builder, DiffSorted(current, newValues), len(current)); err != nil {
					return nil, err
				}
				current = newValues
			case watch.Modified, watch.Bookmark:
				// A modified pod cannot move to another node.
			case watch.Error:
				return nil, fmt.Errorf("pod watch: %w", apierrors.FromObject(ev.Object))
			}

		case ev, ok := <-recordWatch.ResultChan():
			if !ok {
				return nil, fmt.Errorf("record watch stream closed")
			}
			snapshot, err := handleRecordEvent(ev, c.Record)
			if err != nil {
				return nil, err
			}
			if snapshot != nil {
				return snapshot, nil
			}
		}
	}
}

// applyChanges turns diff output into provider calls, one record per change,
// in the order the merge join discovered them. managed is the number of
// values currently under the fqdn: the first value in brings the tracking
// record with it (ownership-checked AddRecord), the last value out takes it
// away (DeleteRecord); changes in between are raw value mutations under the
// existing tracking record.
func (c *PodCollector) applyChanges(ctx context.Context, provider dns.Provider, builder dns.Builder, changes []Change, managed int) error {
	for _, ch := range changes {
		rec, err := builder.WithValue(ch.Value).Finalize()
		if err != nil {
			return err
		}
		switch ch.Op {
		case Add:
			c.Log.Info("value added", "fqdn", rec.FQDN, "value", ch.Value)
			if managed == 0 {
				err = dns.AddRecord(ctx, provider, rec.Zone, rec)
			} else {
				err = provider.AddRawRecord(ctx, rec.Zone, rec)
			}
			if err != nil {
				return err
			}
			managed++
		case Remove:
			c.Log.Info("value removed", "fqdn", rec.FQDN, "value", ch.Value)
			if managed == 1 {
				err = dns.DeleteRecord(ctx, provider, rec.Zone, rec)
			} else {
				err = provider.DeleteRawRecord(ctx, rec.Zone, rec)
			}
			if err != nil {
				return err
			}
			managed--
		}
	}
	return nil
}
