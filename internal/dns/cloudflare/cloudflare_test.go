package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"

	"github.com/RyanSquared/k8s-ares/internal/dns"
)

func TestNew_APIToken(t *testing.T) {
	options := map[string]string{
		"apiToken": "token123",
	}

	p, err := New(logr.Discard(), options)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("expected baseURL %q, got %q", defaultBaseURL, p.baseURL)
	}
}

func TestNew_EmailAndKey(t *testing.T) {
	options := map[string]string{
		"email":  "admin@example.com",
		"apiKey": "key456",
	}

	if _, err := New(logr.Discard(), options); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_CustomBaseURL(t *testing.T) {
	options := map[string]string{
		"apiToken": "token123",
		"baseUrl":  "http://localhost:8080/v4",
	}

	p, err := New(logr.Discard(), options)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.baseURL != "http://localhost:8080/v4" {
		t.Errorf("expected baseURL 'http://localhost:8080/v4', got %q", p.baseURL)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	if _, err := New(logr.Discard(), map[string]string{}); err == nil {
		t.Fatal("expected error for missing credentials, got nil")
	}
}

func TestNew_EmailWithoutKey(t *testing.T) {
	options := map[string]string{
		"email": "admin@example.com",
	}

	if _, err := New(logr.Discard(), options); err == nil {
		t.Fatal("expected error for email without apiKey, got nil")
	}
}

// fakeCloudflare is a minimal in-memory Cloudflare API for tests. It serves
// one zone and tracks the records within it.
type fakeCloudflare struct {
	t           *testing.T
	zoneName    string
	zoneID      string
	records     []recordRow
	nextID      int
	zoneLookups int
}

func (f *fakeCloudflare) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) {
		f.zoneLookups++
		name := r.URL.Query().Get("name")
		result := []map[string]string{}
		if name == f.zoneName {
			result = append(result, map[string]string{"id": f.zoneID, "name": f.zoneName})
		}
		writeJSON(w, map[string]interface{}{"success": true, "errors": []apiError{}, "result": result})
	})

	mux.HandleFunc("/zones/"+f.zoneID+"/dns_records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			matched := []recordRow{}
			for _, row := range f.records {
				if v := q.Get("name"); v != "" && v != row.Name {
					continue
				}
				if v := q.Get("type"); v != "" && v != row.Type {
					continue
				}
				if v := q.Get("content"); v != "" && v != row.Content {
					continue
				}
				matched = append(matched, row)
			}
			writeJSON(w, map[string]interface{}{"success": true, "errors": []apiError{}, "result": matched})
		case http.MethodPost:
			var body struct {
				Type    string `json:"type"`
				Name    string `json:"name"`
				Content string `json:"content"`
				TTL     int64  `json:"ttl"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				f.t.Errorf("decoding create body: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.nextID++
			f.records = append(f.records, recordRow{
				ID:       fmt.Sprintf("rec-%d", f.nextID),
				Type:     body.Type,
				Name:     body.Name,
				Content:  body.Content,
				TTL:      body.TTL,
				ZoneName: f.zoneName,
			})
			writeJSON(w, map[string]interface{}{"success": true, "errors": []apiError{}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/zones/"+f.zoneID+"/dns_records/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Path[len("/zones/"+f.zoneID+"/dns_records/"):]
		for i, row := range f.records {
			if row.ID == id {
				f.records = append(f.records[:i], f.records[i+1:]...)
				writeJSON(w, map[string]interface{}{"success": true, "errors": []apiError{}})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestProvider(t *testing.T, fake *fakeCloudflare) *Provider {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	p, err := New(logr.Discard(), map[string]string{
		"apiToken": "token123",
		"baseUrl":  server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestGetZone(t *testing.T) {
	fake := &fakeCloudflare{t: t, zoneName: "example.com", zoneID: "zone-1"}
	p := newTestProvider(t, fake)

	zone, err := p.GetZone(context.Background(), "app.staging.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zone != "example.com" {
		t.Errorf("expected zone 'example.com', got %q", zone)
	}
}

func TestGetZone_NoZone(t *testing.T) {
	fake := &fakeCloudflare{t: t, zoneName: "example.com", zoneID: "zone-1"}
	p := newTestProvider(t, fake)

	if _, err := p.GetZone(context.Background(), "app.example.org"); err == nil {
		t.Fatal("expected error for fqdn outside any zone, got nil")
	}
}

func TestGetZone_CachesZoneID(t *testing.T) {
	fake := &fakeCloudflare{t: t, zoneName: "example.com", zoneID: "zone-1"}
	p := newTestProvider(t, fake)

	if _, err := p.GetZone(context.Background(), "app.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lookupsAfterFirst := fake.zoneLookups

	if _, err := p.GetRecords(context.Background(), "example.com", "app.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.zoneLookups != lookupsAfterFirst {
		t.Errorf("expected cached zone ID to be reused, got %d extra lookups", fake.zoneLookups-lookupsAfterFirst)
	}
}

func TestGetRecords(t *testing.T) {
	fake := &fakeCloudflare{
		t:        t,
		zoneName: "example.com",
		zoneID:   "zone-1",
		records: []recordRow{
			{ID: "rec-1", Type: "A", Name: "app.example.com", Content: "10.0.0.1", TTL: 300, ZoneName: "example.com"},
			{ID: "rec-2", Type: "A", Name: "app.example.com", Content: "10.0.0.2", TTL: 300, ZoneName: "example.com"},
			{ID: "rec-3", Type: "A", Name: "other.example.com", Content: "10.0.0.3", TTL: 300, ZoneName: "example.com"},
		},
	}
	p := newTestProvider(t, fake)

	records, err := p.GetRecords(context.Background(), "example.com", "app.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Value != "10.0.0.1" || records[1].Value != "10.0.0.2" {
		t.Errorf("unexpected record values: %v, %v", records[0].Value, records[1].Value)
	}
	if records[0].Type != dns.TypeA {
		t.Errorf("expected type A, got %q", records[0].Type)
	}
}

func TestGetAllRecords_NotImplemented(t *testing.T) {
	p, err := New(logr.Discard(), map[string]string{"apiToken": "token123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.GetAllRecords(context.Background(), "example.com"); !errors.Is(err, dns.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
}

func TestAddRawRecord(t *testing.T) {
	fake := &fakeCloudflare{t: t, zoneName: "example.com", zoneID: "zone-1"}
	p := newTestProvider(t, fake)

	record := dns.Record{FQDN: "app.example.com", Zone: "example.com", Type: dns.TypeA, TTL: 300, Value: "10.0.0.1"}
	if err := p.AddRawRecord(context.Background(), "example.com", record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.records) != 1 {
		t.Fatalf("expected 1 record on server, got %d", len(fake.records))
	}
	got := fake.records[0]
	if got.Name != "app.example.com" || got.Content != "10.0.0.1" || got.Type != "A" || got.TTL != 300 {
		t.Errorf("unexpected record on server: %+v", got)
	}
}

func TestDeleteRawRecord(t *testing.T) {
	fake := &fakeCloudflare{
		t:        t,
		zoneName: "example.com",
		zoneID:   "zone-1",
		records: []recordRow{
			{ID: "rec-1", Type: "A", Name: "app.example.com", Content: "10.0.0.1", TTL: 300, ZoneName: "example.com"},
			{ID: "rec-2", Type: "A", Name: "app.example.com", Content: "10.0.0.2", TTL: 300, ZoneName: "example.com"},
		},
	}
	p := newTestProvider(t, fake)

	record := dns.Record{FQDN: "app.example.com", Zone: "example.com", Type: dns.TypeA, TTL: 300, Value: "10.0.0.1"}
	if err := p.DeleteRawRecord(context.Background(), "example.com", record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.records) != 1 {
		t.Fatalf("expected 1 record left on server, got %d", len(fake.records))
	}
	if fake.records[0].Content != "10.0.0.2" {
		t.Errorf("expected surviving record '10.0.0.2', got %q", fake.records[0].Content)
	}
}

func TestDeleteRawRecord_NotFound(t *testing.T) {
	fake := &fakeCloudflare{t: t, zoneName: "example.com", zoneID: "zone-1"}
	p := newTestProvider(t, fake)

	record := dns.Record{FQDN: "app.example.com", Zone: "example.com", Type: dns.TypeA, TTL: 300, Value: "10.0.0.1"}
	if err := p.DeleteRawRecord(context.Background(), "example.com", record); err == nil {
		t.Fatal("expected error for missing record, got nil")
	}
}
