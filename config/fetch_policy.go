package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Normalize lower-cases hosts, strips schemes and "www." and removes duplicates.
func (c FetchPolicyConfig) Normalize() FetchPolicyConfig {
	c.Disallow = sanitizeDomainList(c.Disallow)
	c.Paywall = sanitizeDomainList(c.Paywall)
	return c
}

// Validate rejects a host listed as both disallowed and paywalled.
func (c FetchPolicyConfig) Validate() error {
	norm := c.Normalize()
	disallow := make(map[string]struct{}, len(norm.Disallow))
	for _, host := range norm.Disallow {
		disallow[host] = struct{}{}
	}
	for _, host := range norm.Paywall {
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("fetch policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// Blocked returns every host research must skip.
func (c FetchPolicyConfig) Blocked() []string {
	norm := c.Normalize()
	return sanitizeDomainList(append(append([]string(nil), norm.Disallow...), norm.Paywall...))
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := NormalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

// NormalizeHost reduces a host or URL to its lower-case host without "www.".
func NormalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}
	return strings.TrimPrefix(value, "www.")
}
