// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Scheme is the Authorization header scheme name.
const Scheme = "Dialback"

var (
	// ErrNoCredentials means the request carries no Dialback authorization.
	ErrNoCredentials = errors.New("dialback: no credentials")

	// ErrMalformedHeader means the Dialback authorization could not be parsed.
	ErrMalformedHeader = errors.New("dialback: malformed authorization header")
)

// FormatAuthorization builds `Dialback host="…", token="…"` (or the
// webfinger variant).
func FormatAuthorization(id Identity, token string) string {
	return fmt.Sprintf("%s %s=%q, token=%q", Scheme, id.Kind, id.Value, token)
}

// ParseAuthorization extracts the identity and token from a Dialback
// Authorization header value.
func ParseAuthorization(header string) (Identity, string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(Scheme) || !strings.EqualFold(header[:len(Scheme)], Scheme) {
		return Identity{}, "", ErrNoCredentials
	}
	rest := strings.TrimSpace(header[len(Scheme):])
	if rest == "" {
		return Identity{}, "", ErrMalformedHeader
	}

	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Identity{}, "", ErrMalformedHeader
		}
		v = strings.TrimSpace(v)
		if uq, err := strconv.Unquote(v); err == nil {
			v = uq
		}
		params[strings.ToLower(strings.TrimSpace(k))] = v
	}

	var id Identity
	switch {
	case params[KindHost] != "":
		id = HostIdentity(params[KindHost])
	case params[KindWebfinger] != "":
		id = WebfingerIdentity(params[KindWebfinger])
	default:
		return Identity{}, "", fmt.Errorf("%w: no identity", ErrMalformedHeader)
	}
	token := params["token"]
	if token == "" {
		return Identity{}, "", fmt.Errorf("%w: no token", ErrMalformedHeader)
	}
	return id, token, nil
}

// ParseDate accepts an HTTP date, an RFC 3339 timestamp or integer
// milliseconds, and returns unix milliseconds.
func ParseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("dialback: empty date")
	}
	if t, err := http.ParseTime(s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	return 0, fmt.Errorf("dialback: unparseable date %q", s)
}

// FormatDate renders unix milliseconds as an HTTP date.
func FormatDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(http.TimeFormat)
}
