// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package acct parses and formats webfinger account addresses.
// Addresses use the form [acct:]user@host[:port], where the user is
// separated from the host by the last '@' (the user part may contain '@').
package acct

import (
	"fmt"
	"strings"
)

// Scheme is the URI scheme prefix of account addresses.
const Scheme = "acct:"

// Parse splits an account address on the last '@' into user and domain.
// A leading "acct:" is optional. The domain must not contain a scheme
// ("://") or path ("/"). Both parts must be non-empty.
func Parse(addr string) (user, domain string, err error) {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), Scheme)
	if addr == "" {
		return "", "", fmt.Errorf("empty account address")
	}

	idx := strings.LastIndex(addr, "@")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid account address: missing '@' separator in %q", addr)
	}

	user = addr[:idx]
	domain = addr[idx+1:]

	if user == "" {
		return "", "", fmt.Errorf("invalid account address: empty user in %q", addr)
	}
	if domain == "" {
		return "", "", fmt.Errorf("invalid account address: empty domain in %q", addr)
	}
	if strings.Contains(domain, "://") {
		return "", "", fmt.Errorf("invalid account address: domain contains scheme in %q", addr)
	}
	if strings.Contains(domain, "/") {
		return "", "", fmt.Errorf("invalid account address: domain contains path in %q", addr)
	}

	return user, domain, nil
}

// Domain returns the domain part of addr, or "" when addr does not parse.
func Domain(addr string) string {
	_, domain, err := Parse(addr)
	if err != nil {
		return ""
	}
	return domain
}

// Format builds "acct:user@domain".
func Format(user, domain string) string {
	return Scheme + user + "@" + domain
}

// Canonical returns addr with the "acct:" prefix, as used for webfinger
// resource queries.
func Canonical(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, Scheme) {
		return addr
	}
	return Scheme + addr
}
