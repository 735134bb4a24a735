// Package hostutil validates the host and port parts of camera URIs and
// configured hostnames.
package hostutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
)

// ValidateHost accepts an IPv4 literal, an IPv6 literal (bracketed or not)
// or an RFC 1123 hostname.
func ValidateHost(raw string) error {
	switch {
	case raw == "":
		return fmt.Errorf("empty host")
	case looksLikeIPv4(raw):
		if ip := net.ParseIP(raw); ip == nil || ip.To4() == nil {
			return fmt.Errorf("bad IP: '%s'", raw)
		}
	case looksLikeIPv6(raw):
		inner := raw
		if strings.HasPrefix(raw, "[") {
			if !strings.HasSuffix(raw, "]") {
				return fmt.Errorf("bad IPv6: '%s'", raw)
			}
			inner = raw[1 : len(raw)-1]
		}
		ip := net.ParseIP(inner)
		if ip == nil || ip.To4() != nil {
			return fmt.Errorf("bad IPv6: '%s'", raw)
		}
	default:
		if !validHostname(raw) {
			return fmt.Errorf("bad hostname: '%s'", raw)
		}
	}
	return nil
}

// ValidatePort accepts 1..65535 without leading zeros. An empty port is
// valid; the scheme default applies.
func ValidatePort(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > 1 && raw[0] == '0' {
		return fmt.Errorf("bad port: '%s'", raw)
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("bad port: '%s'", raw)
	}
	return nil
}

// looksLikeIPv4 checks if raw looks like dotted quad
func looksLikeIPv4(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func looksLikeIPv6(raw string) bool {
	return strings.Contains(raw, ":") || strings.HasPrefix(raw, "[")
}

// validHostname checks DNS label rules (RFC 1123)
func validHostname(raw string) bool {
	if len(raw) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(raw, "."), ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
				return false
			}
		}
	}
	return true
}
