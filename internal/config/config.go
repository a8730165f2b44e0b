// Package config loads and models the ares configuration document.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// AresConfig pairs a set of fqdn suffix selectors with the DNS provider that
// manages the matching records.
type AresConfig struct {
	// Selector lists fqdn suffixes this entry is responsible for.
	Selector []string `yaml:"selector"`

	// Provider is the registered provider tag, e.g. "cloudflare".
	Provider string `yaml:"provider"`

	// ProviderOptions holds provider-specific credentials and settings.
	ProviderOptions map[string]string `yaml:"providerOptions"`
}

// MatchesSelector reports whether fqdn falls under one of the entry's
// selectors. Matching is a raw suffix check, not label-boundary aware: the
// selector "example.com" also matches "badexample.com". To match subdomains
// of example.com but not the apex, use the selector ".example.com".
func (c AresConfig) MatchesSelector(fqdn string) bool {
	for _, s := range c.Selector {
		if strings.HasSuffix(fqdn, s) {
			return true
		}
	}
	return false
}

// Parse decodes a list of configuration entries from YAML. ${ENV_VAR}
// references in provider option values are expanded.
func Parse(data []byte) ([]AresConfig, error) {
	var configs []AresConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parsing ares config: %w", err)
	}

	for i := range configs {
		if configs[i].Provider == "" {
			return nil, fmt.Errorf("ares config entry %d: missing required field 'provider'", i)
		}
		if len(configs[i].Selector) == 0 {
			return nil, fmt.Errorf("ares config entry %d: missing required field 'selector'", i)
		}
		for k, v := range configs[i].ProviderOptions {
			configs[i].ProviderOptions[k] = os.ExpandEnv(v)
		}
	}

	return configs, nil
}

// LoadFromSecret reads the configuration document from the given key of a
// Secret, typically ares-secret/ares.yaml in the default namespace.
func LoadFromSecret(ctx context.Context, clientset kubernetes.Interface, namespace, name, key string) ([]AresConfig, error) {
	secret, err := clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting secret %s/%s: %w", namespace, name, err)
	}

	data, ok := secret.Data[key]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s has no key %q", namespace, name, key)
	}

	return Parse(data)
}
