// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package hostport normalizes host[:port] authorities so that peers can be
// compared by domain: default ports drop out and internationalized names fold
// to punycode.
package hostport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize returns a lowercase, scheme-aware host[:port] with default ports
// stripped. Default ports: :443 for https, :80 for http. Unicode hostnames are
// folded to their ASCII (punycode) form.
//
// Rejects values containing "://" or "/" since all inputs are schemeless
// authorities. Preserves IPv6 bracket form (e.g. [::1], [::1]:9200).
func Normalize(authority string, scheme string) (string, error) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return "", errors.New("hostport: empty authority")
	}

	if strings.Contains(authority, "://") {
		return "", fmt.Errorf("hostport: authority %q must not contain a scheme", authority)
	}

	if strings.Contains(authority, "/") {
		return "", fmt.Errorf("hostport: authority %q must not contain a path", authority)
	}

	// Use a dummy scheme so url.Parse handles IPv6 brackets and port splitting.
	u, err := url.Parse("dummy://" + authority)
	if err != nil {
		return "", fmt.Errorf("hostport: invalid authority %q: %w", authority, err)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", fmt.Errorf("hostport: authority %q has no host", authority)
	}

	if net.ParseIP(hostname) == nil {
		ascii, err := idna.Lookup.ToASCII(hostname)
		if err != nil {
			return "", fmt.Errorf("hostport: invalid host %q: %w", hostname, err)
		}
		hostname = ascii
	}

	port := u.Port()
	if isDefaultPort(port, strings.ToLower(scheme)) {
		port = ""
	}

	if port == "" {
		// IPv6 addresses need brackets when output as standalone authorities.
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]", nil
		}
		return hostname, nil
	}

	return net.JoinHostPort(hostname, port), nil
}

// FromURL returns the normalized authority of an absolute URL.
func FromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("hostport: invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("hostport: %q is not an absolute URL", raw)
	}
	return Normalize(u.Host, u.Scheme)
}

// URLOnHost reports whether raw is an absolute URL served by authority,
// with default ports judged by the URL's scheme.
func URLOnHost(raw, authority string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || authority == "" {
		return false
	}
	return Equal(u.Host, authority, u.Scheme)
}

// Equal reports whether two authorities name the same host under scheme.
// Unparseable input is never equal to anything.
func Equal(a, b, scheme string) bool {
	na, err := Normalize(a, scheme)
	if err != nil {
		return false
	}
	nb, err := Normalize(b, scheme)
	if err != nil {
		return false
	}
	return na == nb
}

func isDefaultPort(port, scheme string) bool {
	switch scheme {
	case "https":
		return port == "443"
	case "http":
		return port == "80"
	default:
		return false
	}
}
