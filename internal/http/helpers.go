package http

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"expenses/internal/core"
	"expenses/internal/session"
)

// trustedProxies are allowed to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parseCIDR("127.0.0.0/8"),
	parseCIDR("10.0.0.0/8"),
	parseCIDR("172.16.0.0/12"),
	parseCIDR("192.168.0.0/16"),
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

// sanitizeInput trims whitespace and removes control characters other than
// tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// parseRange reads start and end from q. Both absent yields nil unless
// required is set; one without the other is a bad request.
func parseRange(q url.Values, required bool) (*session.DateRange, error) {
	startStr := strings.TrimSpace(q.Get("start"))
	endStr := strings.TrimSpace(q.Get("end"))

	if startStr == "" && endStr == "" && !required {
		return nil, nil
	}
	if startStr == "" || endStr == "" {
		return nil, fmt.Errorf("%w: start and end must both be given", errBadRequest)
	}

	start, err := core.ParseDate(startStr)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := core.ParseDate(endStr)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	return &session.DateRange{Start: start, End: end}, nil
}

// parseCurrencyCode upper-cases s without checking it against the known
// set, so unknown codes surface from the converter.
func parseCurrencyCode(s string) core.Currency {
	return core.Currency(strings.ToUpper(strings.TrimSpace(s)))
}
