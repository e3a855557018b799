package proxy

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// privateV4 lists the IPv4 ranges an agent endpoint may not point at.
var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

var (
	uniqueLocalV6 = netip.MustParsePrefix("fc00::/7")
	linkLocalV6   = netip.MustParsePrefix("fe80::/10")
)

// ValidateTarget rejects URLs that must never be fetched on a caller's
// behalf: non-http(s) schemes, embedded credentials, localhost and .local
// names, and private or loopback IP literals. Host names are matched as
// written and are not resolved.
func ValidateTarget(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return blocked(rawURL, "unparseable url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return blocked(rawURL, fmt.Sprintf("scheme %q not allowed", u.Scheme))
	}
	if u.User != nil {
		return blocked(rawURL, "embedded credentials")
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return blocked(rawURL, "missing host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return blocked(rawURL, "local host name")
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		if numericHost(host) {
			return blocked(rawURL, "non-canonical ip literal")
		}
		return nil
	}
	if IsPrivateAddr(addr) {
		return blocked(rawURL, "private address")
	}
	return nil
}

// numericHost reports whether a host that failed strict parsing would still
// be read as IPv4 by a lenient resolver: its last label is decimal, octal or
// 0x-prefixed hex, as in 2130706433, 0x7f000001, 127.1 or 0177.0.0.1.
func numericHost(host string) bool {
	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	if hex, ok := strings.CutPrefix(last, "0x"); ok {
		return strings.Trim(hex, "0123456789abcdef") == ""
	}
	return last != "" && strings.Trim(last, "0123456789") == ""
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// unique-local, unspecified, or an IPv4-mapped form of one of those.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.WithZone("")
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.Is4() {
		for _, p := range privateV4 {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	return addr.IsLoopback() ||
		addr.IsUnspecified() ||
		uniqueLocalV6.Contains(addr) ||
		linkLocalV6.Contains(addr)
}

func blocked(rawURL, reason string) error {
	return hyphae.NewGatewayError(hyphae.ErrCodeSSRFBlocked, "endpoint target is not allowed", fmt.Errorf("%w: %s", hyphae.ErrBlockedTarget, reason)).
		WithDetails("url", redact(rawURL)).
		WithDetails("reason", reason)
}

// redact drops userinfo and query from a URL for logs and error details.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
