// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package instanceid derives instance public identity from config.PublicOrigin.
package instanceid

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/hostport"
)

// NormalizePublicOrigin applies cosmetic-only normalization to a public origin:
// trim a single trailing slash and lowercase scheme + hostname.
// It does NOT strip default ports. Object ids are minted under this value.
func NormalizePublicOrigin(publicOrigin string) (string, error) {
	u, err := url.Parse(publicOrigin)
	if err != nil {
		return "", fmt.Errorf("instanceid: invalid public origin: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("instanceid: public origin must be an absolute URL with scheme and host: %q", publicOrigin)
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Authority returns the lowercased host[:port] of a public origin, default
// port included when present.
func Authority(publicOrigin string) (string, error) {
	u, err := url.Parse(publicOrigin)
	if err != nil {
		return "", fmt.Errorf("instanceid: invalid public origin: %w", err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("instanceid: public origin has no host: %q", publicOrigin)
	}

	return strings.ToLower(u.Host), nil
}

// LocalDomain returns the dialback identity of this instance: the normalized
// authority of the public origin with the scheme's default port stripped.
// Returns "" when the origin is unusable.
func LocalDomain(publicOrigin string) string {
	domain, err := hostport.FromURL(publicOrigin)
	if err != nil {
		return ""
	}
	return domain
}
