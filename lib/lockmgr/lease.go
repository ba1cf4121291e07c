package lockmgr

import (
	"fmt"
	"strings"
	"time"
)

// LeasePolicy decides the lease duration per collection. It lives outside the
// service so that every call site passes the lease explicitly.
type LeasePolicy struct {
	Default   time.Duration
	Overrides map[string]time.Duration
}

// For returns the lease of a collection
func (p LeasePolicy) For(collection string) time.Duration {
	if d, ok := p.Overrides[collection]; ok {
		return d
	}
	return p.Default
}

// ParseLeaseOverrides parses "collection=duration,..." (e.g. "magazine_issues=30m").
func ParseLeaseOverrides(s string) (map[string]time.Duration, error) {
	overrides := map[string]time.Duration{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		collection, raw, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(collection) == "" {
			return nil, fmt.Errorf("invalid lease override %q, expected collection=duration", entry)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid lease override %q: %w", entry, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid lease override %q: duration must be positive", entry)
		}
		overrides[strings.TrimSpace(collection)] = d
	}
	return overrides, nil
}
