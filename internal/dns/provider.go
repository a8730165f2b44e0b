package dns

import (
	"context"
	"errors"
)

// ErrNotImplemented is returned by providers for operations the backend does
// not support, e.g. bulk record listing. It is distinct from an I/O failure.
var ErrNotImplemented = errors.New("dns: operation not implemented by provider")

// Provider is the interface that DNS backends must implement. All methods may
// fail with provider I/O errors (network, auth, malformed response); callers
// must not assume idempotency of the raw mutations.
type Provider interface {
	// GetZone resolves the owning DNS zone for a fully qualified domain
	// name by progressively stripping leftmost labels and querying each
	// suffix until one resolves. It fails if no suffix is a known zone.
	GetZone(ctx context.Context, fqdn string) (string, error)

	// GetRecords lists the records at name within zone. A name with no
	// records yields an empty list, not an error.
	GetRecords(ctx context.Context, zone, name string) ([]Record, error)

	// GetAllRecords lists every record in the zone, keyed by record name.
	// Backends without bulk listing return ErrNotImplemented.
	GetAllRecords(ctx context.Context, zone string) (map[string][]Record, error)

	// AddRawRecord creates a single record, with no ownership semantics.
	AddRawRecord(ctx context.Context, zone string, record Record) error

	// DeleteRawRecord deletes a single record, matched by
	// (zone, fqdn, type, value), with no ownership semantics.
	DeleteRawRecord(ctx context.Context, zone string, record Record) error
}
