package dns

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanSquared/k8s-ares/internal/metrics"
)

// Ownership of a managed fqdn is marked by a TXT record at "_owner.<fqdn>"
// valued "ares". The tracking record is created before the value record and
// deleted after it, so a crash between the two calls never leaves an
// un-tracked value record that would later be treated as owned.
const (
	trackingPrefix = "_owner."
	trackingValue  = "ares"
	trackingTTL    = 1
)

var (
	// ErrAlreadyOwned is returned by AddRecord when a tracking record is
	// already present for the fqdn, which can indicate a conflict with
	// another ares instance.
	ErrAlreadyOwned = errors.New("dns: record already owned")

	// ErrNotOwned is returned by DeleteRecord when no tracking record
	// exists for the fqdn; ares refuses to delete records it did not
	// create.
	ErrNotOwned = errors.New("dns: record not owned by ares")
)

// TrackingName returns the name of the tracking record for fqdn.
func TrackingName(fqdn string) string {
	return trackingPrefix + fqdn
}

func trackingRecord(zone, fqdn string) Record {
	return Record{
		FQDN:  TrackingName(fqdn),
		Zone:  zone,
		Type:  TypeTXT,
		TTL:   trackingTTL,
		Value: trackingValue,
	}
}

// AddRecord creates record along with its tracking record. If a tracking
// record already exists for the fqdn it fails with ErrAlreadyOwned and
// performs no mutation.
func AddRecord(ctx context.Context, p Provider, zone string, record Record) error {
	existing, err := p.GetRecords(ctx, zone, TrackingName(record.FQDN))
	if err != nil {
		return fmt.Errorf("looking up tracking record for %s: %w", record.FQDN, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("adding record %s: %w", record.FQDN, ErrAlreadyOwned)
	}

	// Tracking record first; see ownership invariant above.
	if err := p.AddRawRecord(ctx, zone, trackingRecord(zone, record.FQDN)); err != nil {
		return fmt.Errorf("creating tracking record for %s: %w", record.FQDN, err)
	}
	if err := p.AddRawRecord(ctx, zone, record); err != nil {
		return fmt.Errorf("creating record %s: %w", record.FQDN, err)
	}
	metrics.RecordsCreated.WithLabelValues(zone).Inc()
	return nil
}

// DeleteRecord deletes record and its tracking record. If no tracking record
// exists for the fqdn it fails with ErrNotOwned and performs no mutation.
func DeleteRecord(ctx context.Context, p Provider, zone string, record Record) error {
	existing, err := p.GetRecords(ctx, zone, TrackingName(record.FQDN))
	if err != nil {
		return fmt.Errorf("looking up tracking record for %s: %w", record.FQDN, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("deleting record %s: %w", record.FQDN, ErrNotOwned)
	}

	// Value record first, so the fqdn stays tracked until nothing managed
	// is left under it.
	if err := p.DeleteRawRecord(ctx, zone, record); err != nil {
		return fmt.Errorf("deleting record %s: %w", record.FQDN, err)
	}
	if err := p.DeleteRawRecord(ctx, zone, trackingRecord(zone, record.FQDN)); err != nil {
		return fmt.Errorf("deleting tracking record for %s: %w", record.FQDN, err)
	}
	metrics.RecordsDeleted.WithLabelValues(zone).Inc()
	return nil
}

// SyncRecords reconciles the remote records at the builder's fqdn with the
// desired value set: remote records whose value is not desired are deleted,
// desired values with no remote record are added. This is a full
// reconciliation, safe to call repeatedly; with no external changes a second
// call issues no mutations.
//
// The tracking record is handled at most once per call. The first stale
// delete goes through DeleteRecord and takes the tracking record with it;
// the first add after that (or onto an unmanaged fqdn) goes through
// AddRecord and recreates it. Further mutations in the same call are raw
// value-record operations, since the tracking state was already settled.
func SyncRecords(ctx context.Context, p Provider, builder Builder, desired []string) error {
	zone := builder.Zone()
	remote, err := p.GetRecords(ctx, zone, builder.FQDN())
	if err != nil {
		return fmt.Errorf("listing records for %s: %w", builder.FQDN(), err)
	}

	wanted := make(map[string]bool, len(desired))
	for _, v := range desired {
		wanted[v] = true
	}
	have := make(map[string]bool, len(remote))
	for _, rec := range remote {
		have[rec.Value] = true
	}

	var missing []string
	for _, v := range desired {
		if !have[v] {
			missing = append(missing, v)
		}
	}

	untracked := false
	for _, rec := range remote {
		if wanted[rec.Value] {
			continue
		}
		if !untracked {
			if err := DeleteRecord(ctx, p, zone, rec); err != nil {
				return err
			}
			untracked = true
			continue
		}
		if err := p.DeleteRawRecord(ctx, zone, rec); err != nil {
			return fmt.Errorf("deleting record %s: %w", rec.FQDN, err)
		}
	}

	// Deleting the last stale value above also removed the tracking
	// record; if values survive but nothing is being added, restore it so
	// the fqdn stays managed.
	if untracked && len(missing) == 0 && len(desired) > 0 {
		if err := p.AddRawRecord(ctx, zone, trackingRecord(zone, builder.FQDN())); err != nil {
			return fmt.Errorf("restoring tracking record for %s: %w", builder.FQDN(), err)
		}
	}

	// When the fqdn is still tracked (values existed and none were
	// deleted), new values join it with raw adds; AddRecord would see the
	// tracking record and report a conflict with ourselves.
	tracked := false
	if len(missing) > 0 && len(remote) > 0 && !untracked {
		existing, err := p.GetRecords(ctx, zone, TrackingName(builder.FQDN()))
		if err != nil {
			return fmt.Errorf("looking up tracking record for %s: %w", builder.FQDN(), err)
		}
		tracked = len(existing) > 0
	}

	for _, v := range missing {
		rec, err := builder.WithValue(v).Finalize()
		if err != nil {
			return err
		}
		if tracked {
			if err := p.AddRawRecord(ctx, zone, rec); err != nil {
				return fmt.Errorf("creating record %s: %w", rec.FQDN, err)
			}
			continue
		}
		if err := AddRecord(ctx, p, zone, rec); err != nil {
			return err
		}
		tracked = true
	}
	return nil
}
