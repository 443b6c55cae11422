// Package origin decides whether a credential's declared origin patterns
// apply to a requested URL.
package origin

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var ErrInvalidHost = errors.New("invalid host")

const wildcardPrefix = "*."

// hostProfile maps Unicode hosts to ASCII like idna.Lookup, but accepts
// names browsers resolve that the strict rules reject: underscores and
// "--" in the third and fourth positions.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
	idna.CheckHyphens(false),
)

// NormalizeHost extracts the host of raw (a URL or a bare host name) and
// returns it lower-cased, without port or trailing dot, in ASCII form.
func NormalizeHost(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidHost
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidHost
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return "", ErrInvalidHost
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", ErrInvalidHost
	}
	return strings.ToLower(ascii), nil
}

// Match reports whether any pattern applies to requestURL. Rules, first
// match wins:
//
//  1. exact host (a leading "www." is ignored on both sides),
//  2. the requested host is a subdomain of the pattern,
//  3. "*.example.com" matches example.com and all of its subdomains.
//
// An empty pattern set matches nothing. Patterns that cannot be parsed
// are skipped.
func Match(requestURL string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	host, err := NormalizeHost(requestURL)
	if err != nil {
		return false
	}
	for _, p := range patterns {
		if matchPattern(host, p) {
			return true
		}
	}
	return false
}

func matchPattern(host, pattern string) bool {
	pattern = strings.TrimSpace(pattern)

	if rest, ok := strings.CutPrefix(pattern, wildcardPrefix); ok {
		base, err := NormalizeHost(rest)
		if err != nil || isIP(base) || isIP(host) {
			return false
		}
		return host == base || isSubdomain(host, base)
	}

	p, err := NormalizeHost(pattern)
	if err != nil {
		return false
	}
	if stripWWW(host) == stripWWW(p) {
		return true
	}
	if isIP(host) || isIP(p) {
		return false
	}
	return isSubdomain(host, p)
}

func isSubdomain(host, parent string) bool {
	return strings.HasSuffix(host, "."+parent)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

func isIP(host string) bool {
	return net.ParseIP(host) != nil
}
