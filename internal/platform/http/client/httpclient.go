// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package client

import (
	"context"
	"net/http"
)

// HTTPClient is the shared interface for outbound HTTP requests.
// Implemented by ContextClient and by *http.Client wrappers in tests; used by
// the dialback client, the authenticator and discovery.
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// StdClient adapts a plain *http.Client to HTTPClient.
type StdClient struct {
	Client *http.Client
}

// Do sends req with ctx attached.
func (s StdClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c := s.Client
	if c == nil {
		c = http.DefaultClient
	}
	return c.Do(req.WithContext(ctx))
}
