package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies turns addresses and CIDR ranges into prefixes. A bare
// address trusts exactly that host.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Request adapts an inbound *http.Request to antispam.RequestContext.
type Request struct {
	r       *http.Request
	trusted []netip.Prefix
}

// NewRequest wraps r. Forwarding headers are only honored when the peer
// address falls inside one of trusted.
func NewRequest(r *http.Request, trusted ...netip.Prefix) *Request {
	return &Request{r: r, trusted: trusted}
}

// UserIP returns the peer address unless the peer is a trusted proxy. Behind
// a trusted proxy the X-Forwarded-For chain is walked from the right and the
// first untrusted hop wins; X-Real-IP is used when the chain is absent.
func (q *Request) UserIP() string {
	peer := q.peer()
	if !q.isTrusted(peer) {
		return peer
	}

	if fwd := q.r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
		hops := strings.Split(strings.Join(fwd, ","), ",")
		var leftmost string
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			leftmost = hop
			if !q.isTrusted(hop) {
				return hop
			}
		}
		if leftmost != "" {
			return leftmost
		}
	}
	if ip := strings.TrimSpace(q.r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func (q *Request) peer() string {
	host, _, err := net.SplitHostPort(q.r.RemoteAddr)
	if err != nil {
		return q.r.RemoteAddr
	}
	return host
}

func (q *Request) isTrusted(ip string) bool {
	if len(q.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range q.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (q *Request) Referrer() string {
	return q.r.Referer()
}

func (q *Request) UserAgent() string {
	return q.r.UserAgent()
}

// Post returns a posted form value, or "" when absent.
func (q *Request) Post(name string) string {
	return q.r.PostFormValue(name)
}
