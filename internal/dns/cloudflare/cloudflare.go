// Package cloudflare implements the dns.Provider contract against the
// Cloudflare v4 REST API.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jellydator/ttlcache/v3"

	"github.com/RyanSquared/k8s-ares/internal/dns"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// How long resolved zone IDs stay cached. Zones move between accounts
// rarely; a stale entry only costs one failed call before re-resolution.
const zoneCacheTTL = 30 * time.Minute

func init() {
	dns.Register("cloudflare", func(log logr.Logger, options map[string]string) (dns.Provider, error) {
		return New(log, options)
	})
}

// Provider implements dns.Provider for Cloudflare.
type Provider struct {
	baseURL  string
	apiToken string
	email    string
	apiKey   string
	client   *http.Client
	log      logr.Logger
	zones    *ttlcache.Cache[string, string] // zone name → zone ID
}

// New creates a Cloudflare provider from the given providerOptions.
// Authentication is either a scoped API token ("apiToken") or the account
// email plus global API key ("email" and "apiKey"). The optional "baseUrl"
// option overrides the API endpoint.
func New(log logr.Logger, options map[string]string) (*Provider, error) {
	apiToken := options["apiToken"]
	email := options["email"]
	apiKey := options["apiKey"]
	if apiToken == "" && (email == "" || apiKey == "") {
		return nil, fmt.Errorf("cloudflare: either 'apiToken' or both 'email' and 'apiKey' must be set")
	}

	baseURL := options["baseUrl"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		baseURL:  baseURL,
		apiToken: apiToken,
		email:    email,
		apiKey:   apiKey,
		client:   &http.Client{},
		log:      log,
		zones: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](zoneCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}, nil
}

// doRequest builds and executes an HTTP request against the Cloudflare API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: build request: %w", err)
	}

	if p.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiToken)
	} else {
		req.Header.Set("X-Auth-Email", p.email)
		req.Header.Set("X-Auth-Key", p.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// apiError is a single error entry in a Cloudflare response envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatErrors(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%d: %s", e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}

// lookupZone resolves a zone name to its ID, consulting the cache first.
// found is false when the name is not a zone on this account.
func (p *Provider) lookupZone(ctx context.Context, name string) (id string, found bool, err error) {
	if item := p.zones.Get(name); item != nil {
		return item.Value(), true, nil
	}

	resp, err := p.doRequest(ctx, http.MethodGet, "zones?name="+url.QueryEscape(name), nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("cloudflare: zone lookup for %q returned status %d", name, resp.StatusCode)
	}

	var result struct {
		Success bool       `json:"success"`
		Errors  []apiError `json:"errors"`
		Result  []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("cloudflare: decode zone lookup response: %w", err)
	}
	if !result.Success {
		return "", false, fmt.Errorf("cloudflare: zone lookup for %q failed: %s", name, formatErrors(result.Errors))
	}
	if len(result.Result) == 0 {
		return "", false, nil
	}

	p.zones.Set(name, result.Result[0].ID, ttlcache.DefaultTTL)
	return result.Result[0].ID, true, nil
}

// GetZone resolves the owning zone for fqdn by probing each parent suffix.
func (p *Provider) GetZone(ctx context.Context, fqdn string) (string, error) {
	for _, suffix := range dns.ParentSuffixes(fqdn) {
		id, found, err := p.lookupZone(ctx, suffix)
		if err != nil {
			return "", err
		}
		if found {
			p.log.V(1).Info("resolved zone", "fqdn", fqdn, "zone", suffix, "zoneID", id)
			return suffix, nil
		}
	}
	return "", fmt.Errorf("cloudflare: no zone found for %q", fqdn)
}

// recordRow is a DNS record entry as returned by the Cloudflare API.
type recordRow struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int64  `json:"ttl"`
	ZoneName string `json:"zone_name"`
}

func (p *Provider) zoneID(ctx context.Context, zone string) (string, error) {
	id, found, err := p.lookupZone(ctx, zone)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("cloudflare: unknown zone %q", zone)
	}
	return id, nil
}

// listRecords fetches the records matching the given query parameters.
func (p *Provider) listRecords(ctx context.Context, zoneID string, query url.Values) ([]recordRow, error) {
	path := fmt.Sprintf("zones/%s/dns_records?%s", zoneID, query.Encode())
	resp, err := p.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloudflare: record listing returned status %d", resp.StatusCode)
	}

	var result struct {
		Success bool        `json:"success"`
		Errors  []apiError  `json:"errors"`
		Result  []recordRow `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("cloudflare: decode record listing response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("cloudflare: record listing failed: %s", formatErrors(result.Errors))
	}
	// TODO: follow result_info pagination for names with more than 100 records
	return result.Result, nil
}

// GetRecords lists the records at name within zone.
func (p *Provider) GetRecords(ctx context.Context, zone, name string) ([]dns.Record, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}

	query := url.Values{"name": []string{name}}
	rows, err := p.listRecords(ctx, zoneID, query)
	if err != nil {
		return nil, err
	}

	records := make([]dns.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, dns.Record{
			FQDN:  row.Name,
			Zone:  zone,
			Type:  dns.RecordType(row.Type),
			TTL:   row.TTL,
			Value: row.Content,
		})
	}
	return records, nil
}

// GetAllRecords is not supported for Cloudflare.
func (p *Provider) GetAllRecords(_ context.Context, _ string) (map[string][]dns.Record, error) {
	return nil, dns.ErrNotImplemented
}

// AddRawRecord creates a single record in the zone.
func (p *Provider) AddRawRecord(ctx context.Context, zone string, record dns.Record) error {
	p.log.Info("creating record", "fqdn", record.FQDN, "type", record.Type, "value", record.Value)

	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"type":    string(record.Type),
		"name":    record.FQDN,
		"content": record.Value,
		"ttl":     record.TTL,
	}
	resp, err := p.doRequest(ctx, http.MethodPost, fmt.Sprintf("zones/%s/dns_records", zoneID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloudflare: record creation returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool       `json:"success"`
		Errors  []apiError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("cloudflare: decode record creation response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("cloudflare: record creation failed: %s", formatErrors(result.Errors))
	}
	return nil
}

// DeleteRawRecord deletes the record matching (fqdn, type, value) in the zone.
func (p *Provider) DeleteRawRecord(ctx context.Context, zone string, record dns.Record) error {
	p.log.Info("deleting record", "fqdn", record.FQDN, "type", record.Type, "value", record.Value)

	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return err
	}

	query := url.Values{
		"name":    []string{record.FQDN},
		"type":    []string{string(record.Type)},
		"content": []string{record.Value},
	}
	rows, err := p.listRecords(ctx, zoneID, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("cloudflare: no record found matching %s %s %q", record.FQDN, record.Type, record.Value)
	}

	resp, err := p.doRequest(ctx, http.MethodDelete, fmt.Sprintf("zones/%s/dns_records/%s", zoneID, rows[0].ID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloudflare: record deletion returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
