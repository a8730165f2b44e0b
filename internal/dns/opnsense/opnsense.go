// Package opnsense implements the dns.Provider contract against the OPNsense
// Unbound host-override API.
package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/RyanSquared/k8s-ares/internal/dns"
)

func init() {
	dns.Register("opnsense", func(log logr.Logger, options map[string]string) (dns.Provider, error) {
		return New(log, options)
	})
}

// Provider implements dns.Provider for OPNsense Unbound DNS.
type Provider struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	defaultTTL int64
	client     *http.Client
	log        logr.Logger
}

// New creates an OPNsense provider from the given providerOptions.
// Required options: baseUrl, apiKey, apiSecret.
// Optional options: defaultTtl (default 300), skipTlsVerify (default false).
func New(log logr.Logger, options map[string]string) (*Provider, error) {
	baseURL := options["baseUrl"]
	if baseURL == "" {
		return nil, fmt.Errorf("opnsense: missing required option 'baseUrl'")
	}
	apiKey := options["apiKey"]
	if apiKey == "" {
		return nil, fmt.Errorf("opnsense: missing required option 'apiKey'")
	}
	apiSecret := options["apiSecret"]
	if apiSecret == "" {
		return nil, fmt.Errorf("opnsense: missing required option 'apiSecret'")
	}

	defaultTTL := int64(300)
	if v := options["defaultTtl"]; v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid defaultTtl %q: %w", v, err)
		}
		defaultTTL = parsed
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := options["skipTlsVerify"]; v == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		defaultTTL: defaultTTL,
		client:     &http.Client{Transport: transport},
		log:        log,
	}, nil
}

// doRequest builds and executes an HTTP request against the OPNsense API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opnsense: build request: %w", err)
	}

	req.SetBasicAuth(p.apiKey, p.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opnsense: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// reconfigure tells OPNsense to apply DNS changes.
func (p *Provider) reconfigure(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/service/reconfigure", struct{}{})
	if err != nil {
		return fmt.Errorf("opnsense: reconfigure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opnsense: reconfigure returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode reconfigure response: %w", err)
	}
	p.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

// searchResponse is the shape returned by searchHostOverride.
type searchResponse struct {
	Rows []hostRow `json:"rows"`
}

// hostRow represents a single host override row from the search response.
type hostRow struct {
	UUID     string `json:"uuid"`
	Enabled  string `json:"enabled"`
	Hostname string `json:"hostname"`
	Domain   string `json:"domain"`
	RR       string `json:"rr"`
	Server   string `json:"server"`
}

func (r hostRow) fqdn() string {
	return r.Hostname + "." + r.Domain
}

func (p *Provider) toRecord(row hostRow, zone string) dns.Record {
	return dns.Record{
		FQDN:  row.fqdn(),
		Zone:  zone,
		Type:  dns.RecordType(strings.ToUpper(row.RR)),
		TTL:   p.defaultTTL,
		Value: row.Server,
	}
}

// listOverrides fetches every host override entry.
func (p *Provider) listOverrides(ctx context.Context) ([]hostRow, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "unbound/settings/searchHostOverride", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opnsense: searchHostOverride returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("opnsense: decode search response: %w", err)
	}
	return sr.Rows, nil
}

// GetZone maps fqdn to the Unbound override domain. Unbound has no zone
// tree; an override's domain is simply everything past the first label.
func (p *Provider) GetZone(_ context.Context, fqdn string) (string, error) {
	_, domain := dns.SplitHostname(fqdn)
	if domain == "" {
		return "", fmt.Errorf("opnsense: cannot derive a domain from %q", fqdn)
	}
	return domain, nil
}

// GetRecords lists the host overrides at name.
func (p *Provider) GetRecords(ctx context.Context, zone, name string) ([]dns.Record, error) {
	rows, err := p.listOverrides(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]dns.Record, 0)
	for _, row := range rows {
		if strings.EqualFold(row.fqdn(), name) {
			records = append(records, p.toRecord(row, zone))
		}
	}
	return records, nil
}

// GetAllRecords lists every host override under zone, keyed by fqdn.
func (p *Provider) GetAllRecords(ctx context.Context, zone string) (map[string][]dns.Record, error) {
	rows, err := p.listOverrides(ctx)
	if err != nil {
		return nil, err
	}

	records := make(map[string][]dns.Record)
	for _, row := range rows {
		fqdn := row.fqdn()
		if fqdn != zone && !strings.HasSuffix(fqdn, "."+zone) {
			continue
		}
		records[fqdn] = append(records[fqdn], p.toRecord(row, zone))
	}
	return records, nil
}

// buildHostBody creates the JSON body for addHostOverride calls.
func buildHostBody(record dns.Record) map[string]interface{} {
	host, domain := dns.SplitHostname(record.FQDN)
	return map[string]interface{}{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    host,
			"domain":      domain,
			"rr":          string(record.Type),
			"server":      record.Value,
			"description": "managed by ares",
			"mxprio":      "",
			"mx":          "",
		},
	}
}

// AddRawRecord creates a host override for the record.
func (p *Provider) AddRawRecord(ctx context.Context, _ string, record dns.Record) error {
	p.log.Info("creating record", "fqdn", record.FQDN, "type", record.Type, "value", record.Value)

	body := buildHostBody(record)
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/settings/addHostOverride", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opnsense: addHostOverride returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Result string `json:"result"`
		UUID   string `json:"uuid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode addHostOverride response: %w", err)
	}
	if result.Result != "saved" {
		return fmt.Errorf("opnsense: addHostOverride unexpected result: %s", result.Result)
	}

	p.log.Info("record created", "uuid", result.UUID)
	return p.reconfigure(ctx)
}

// DeleteRawRecord removes the host override matching (fqdn, type, value).
func (p *Provider) DeleteRawRecord(ctx context.Context, _ string, record dns.Record) error {
	p.log.Info("deleting record", "fqdn", record.FQDN, "type", record.Type, "value", record.Value)

	rows, err := p.listOverrides(ctx)
	if err != nil {
		return err
	}

	uuid := ""
	for _, row := range rows {
		if strings.EqualFold(row.fqdn(), record.FQDN) &&
			strings.EqualFold(row.RR, string(record.Type)) &&
			row.Server == record.Value {
			uuid = row.UUID
			break
		}
	}
	if uuid == "" {
		return fmt.Errorf("opnsense: no override found matching %s %s %q", record.FQDN, record.Type, record.Value)
	}

	resp, err := p.doRequest(ctx, http.MethodPost, fmt.Sprintf("unbound/settings/delHostOverride/%s", uuid), struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opnsense: delHostOverride returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode delHostOverride response: %w", err)
	}
	if result.Result != "deleted" {
		return fmt.Errorf("opnsense: delHostOverride unexpected result: %s", result.Result)
	}

	p.log.Info("record deleted", "uuid", uuid)
	return p.reconfigure(ctx)
}
