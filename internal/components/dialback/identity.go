// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package dialback implements the dialback challenge-response scheme that
// lets a server check that a claimed remote identity really issued a
// request. The client role signs outbound requests and remembers what it
// signed; the server role answers verification callbacks for challenges
// this server issued; the authenticator verifies inbound signed requests
// by calling back the claimed party.
//
// Dialback proves only that the responder is willing to vouch for a
// token/identity pair. It is not proof of key possession and is defeated
// by an attacker who can also receive callbacks at the claimed endpoint.
package dialback

import (
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/acct"
)

// Identity kinds.
const (
	KindHost      = "host"
	KindWebfinger = "webfinger"
)

// Identity is the party a challenge is issued for: a bare domain or a
// webfinger account address.
type Identity struct {
	Kind  string
	Value string
}

// HostIdentity returns a host= identity.
func HostIdentity(domain string) Identity {
	return Identity{Kind: KindHost, Value: domain}
}

// WebfingerIdentity returns a webfinger= identity.
func WebfingerIdentity(addr string) Identity {
	return Identity{Kind: KindWebfinger, Value: addr}
}

// String returns the "host=<domain>" or "webfinger=<acct>" form used as
// the challenge store key component.
func (i Identity) String() string {
	return i.Kind + "=" + i.Value
}

// Domain returns the domain the identity belongs to.
func (i Identity) Domain() string {
	switch i.Kind {
	case KindHost:
		return i.Value
	case KindWebfinger:
		return acct.Domain(i.Value)
	}
	return ""
}

// Valid reports whether the identity has a known kind and a value.
func (i Identity) Valid() bool {
	return (i.Kind == KindHost || i.Kind == KindWebfinger) && i.Value != ""
}

// ParseIdentity parses the "kind=value" form.
func ParseIdentity(s string) (Identity, error) {
	kind, value, ok := strings.Cut(s, "=")
	id := Identity{Kind: kind, Value: value}
	if !ok || !id.Valid() {
		return Identity{}, fmt.Errorf("dialback: invalid identity %q", s)
	}
	return id, nil
}
