package config

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// hostBlocklistSet holds normalized hostnames that feeds must never be fetched from.
var hostBlocklistSet atomic.Value

func init() {
	hostBlocklistSet.Store(make(map[string]struct{}))
}

// NormalizeHostBlocklist trims, lowercases, and deduplicates host entries.
func NormalizeHostBlocklist(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		host := normalizeHostname(raw)
		if host == "" {
			continue
		}
		if _, exists := unique[host]; exists {
			continue
		}
		unique[host] = struct{}{}
		normalized = append(normalized, host)
	}

	return normalized
}

func updateHostBlocklist(entries []string) {
	normalized := NormalizeHostBlocklist(entries)
	set := make(map[string]struct{}, len(normalized))
	for _, host := range normalized {
		set[host] = struct{}{}
	}
	hostBlocklistSet.Store(set)
}

// IsHostBlocked reports whether the host of rawURL, or one of its parent
// domains, is listed in blocked_hosts.
func IsHostBlocked(rawURL string) bool {
	blockedSet := hostBlocklistSet.Load().(map[string]struct{})
	if len(blockedSet) == 0 {
		return false
	}

	host := normalizeHostname(rawURL)
	if host == "" {
		return false
	}

	if _, ok := blockedSet[host]; ok {
		return true
	}
	for blocked := range blockedSet {
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func normalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Allow bare hostnames by prefixing a scheme for URL parsing.
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.Trim(host, ".")
}
