package hostfuncs

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
)

// AllowList decides which outbound destinations a guest may reach.
// The zero value denies everything; use NewAllowList.
type AllowList struct {
	entries  []allowEntry
	allowAll bool
}

type allowEntry struct {
	host string // hostname, "*.suffix" wildcard, IP or CIDR
	port string // empty matches any port
}

// NewAllowList builds an allow-list from configured entries. A nil slice
// permits every host; a non-nil slice permits only matching hosts. Entries may
// be URLs ("https://api.example.com"), host[:port] pairs, "*.example.com"
// wildcards or CIDRs. The entry "insecure:allow-all" permits every host.
func NewAllowList(hosts []string) (AllowList, error) {
	if hosts == nil {
		return AllowList{allowAll: true}, nil
	}
	al := AllowList{entries: make([]allowEntry, 0, len(hosts))}
	for _, h := range hosts {
		if h == entities.AllowAllHosts {
			return AllowList{allowAll: true}, nil
		}
		entry, err := parseAllowEntry(h)
		if err != nil {
			return AllowList{}, err
		}
		al.entries = append(al.entries, entry)
	}
	return al, nil
}

// AllowsAll reports whether every destination is permitted.
func (a AllowList) AllowsAll() bool {
	return a.allowAll
}

// Check validates that u may be requested. Rejections return a *errors.PolicyError.
func (a AllowList) Check(u *url.URL) error {
	if a.allowAll {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	for _, e := range a.entries {
		if e.port != "" && e.port != port {
			continue
		}
		if matchesPattern(host, e.host) {
			return nil
		}
	}
	return &errors.PolicyError{URL: u.String(), Host: host}
}

func parseAllowEntry(raw string) (allowEntry, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return allowEntry{}, fmt.Errorf("allow-list entry cannot be empty")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			return allowEntry{}, fmt.Errorf("invalid allow-list URL %q", raw)
		}
		return allowEntry{host: strings.ToLower(u.Hostname()), port: u.Port()}, nil
	}
	if _, _, err := net.ParseCIDR(s); err == nil {
		return allowEntry{host: s}, nil
	}
	host, port, err := parseAddress(s)
	if err != nil {
		return allowEntry{}, fmt.Errorf("invalid allow-list entry %q: %w", raw, err)
	}
	return allowEntry{host: strings.ToLower(strings.Trim(host, "[]")), port: port}, nil
}

// parseAddress splits an optional port off an address.
func parseAddress(address string) (host, port string, err error) {
	if !strings.Contains(address, ":") {
		return address, "", nil
	}
	h, p, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		// Bare IPv6 literal
		if net.ParseIP(address) != nil {
			return address, "", nil
		}
		return "", "", splitErr
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return "", "", &net.AddrError{Err: "invalid port", Addr: address}
		}
	}
	return h, p, nil
}

// matchesPattern checks if a host matches a pattern (hostname, wildcard, IP or CIDR).
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}

	// *.example.com matches subdomains only
	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(host, pattern[1:]) {
			return true
		}
	}

	ip := net.ParseIP(host)
	if ip != nil {
		if pip := net.ParseIP(pattern); pip != nil {
			return pip.Equal(ip)
		}
		_, cidr, err := net.ParseCIDR(pattern)
		if err == nil && cidr.Contains(ip) {
			return true
		}
	}

	return false
}
