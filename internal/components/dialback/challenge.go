// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"time"
)

// tokenBytes gives 128 bits of entropy per token.
const tokenBytes = 16

// Challenge is one outbound signed request this server issued.
type Challenge struct {
	Endpoint  string `json:"endpoint"`
	Identity  string `json:"identity"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
}

// Key returns the durable key "<endpoint>/<identity>/<token>/<timestamp>".
func (c Challenge) Key() string {
	return c.Endpoint + "/" + c.Identity + "/" + c.Token + "/" + strconv.FormatInt(c.Timestamp, 10)
}

// NewToken returns a fresh URL-safe random token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CoarseTimestamp rounds t to the second and returns unix milliseconds, so
// the value survives a round trip through an HTTP Date header.
func CoarseTimestamp(t time.Time) int64 {
	return t.Round(time.Second).UnixMilli()
}
