package dns

import "fmt"

// RecordType is a DNS record type.
type RecordType string

// Record types understood by providers.
const (
	TypeA     RecordType = "A"
	TypeAAAA  RecordType = "AAAA"
	TypeALIAS RecordType = "ALIAS"
	TypeCNAME RecordType = "CNAME"
	TypeMX    RecordType = "MX"
	TypeNS    RecordType = "NS"
	TypePTR   RecordType = "PTR"
	TypeSOA   RecordType = "SOA"
	TypeSRV   RecordType = "SRV"
	TypeTXT   RecordType = "TXT"
)

// Record is a concrete DNS record as it exists (or will exist) on a provider.
// A record is identified by (Zone, FQDN, Type, Value) for deletion purposes;
// TTL is not part of its identity.
type Record struct {
	FQDN  string     // e.g. "app.example.com"
	Zone  string     // owning zone, e.g. "example.com"
	Type  RecordType // "A", "CNAME", ...
	TTL   int64      // seconds
	Value string     // IP address or target
}

// Builder assembles a Record over the course of a sync cycle. FQDN, zone and
// type are fixed at construction; value and TTL are filled in per record.
// Updates are functional: each With* call returns a new Builder, so one
// Builder can stamp out many records.
type Builder struct {
	fqdn  string
	zone  string
	rtype RecordType
	ttl   *int64
	value *string
}

// NewBuilder returns a Builder for records at fqdn within zone.
func NewBuilder(fqdn, zone string, rtype RecordType) Builder {
	return Builder{fqdn: fqdn, zone: zone, rtype: rtype}
}

// FQDN returns the record name the builder was constructed with.
func (b Builder) FQDN() string { return b.fqdn }

// Zone returns the zone the builder was constructed with.
func (b Builder) Zone() string { return b.zone }

// WithValue returns a copy of the builder with the record value set.
func (b Builder) WithValue(value string) Builder {
	b.value = &value
	return b
}

// WithTTL returns a copy of the builder with the TTL set.
func (b Builder) WithTTL(ttl int64) Builder {
	b.ttl = &ttl
	return b
}

// Finalize builds the Record. It fails if the value or TTL was never set.
func (b Builder) Finalize() (Record, error) {
	if b.value == nil {
		return Record{}, fmt.Errorf("building record %s: value not set", b.fqdn)
	}
	if b.ttl == nil {
		return Record{}, fmt.Errorf("building record %s: ttl not set", b.fqdn)
	}
	return Record{
		FQDN:  b.fqdn,
		Zone:  b.zone,
		Type:  b.rtype,
		TTL:   *b.ttl,
		Value: *b.value,
	}, nil
}
