// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

const defaultMaxResponseBytes = 1 << 20

// Request is an outbound request to sign.
type Request struct {
	// Method defaults to POST.
	Method      string
	Endpoint    string
	Identity    Identity
	Body        []byte
	ContentType string
}

// Response is the fully buffered reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Now              func() time.Time
	Metrics          *Metrics
	MaxResponseBytes int64
	AllowSensitive   bool
}

// Client signs outbound requests and records each challenge before
// sending it. It is the sending half of server-to-server delivery: code
// that pushes objects to a peer (POST /api/objects on the peer) issues the
// request through IssueChallenge, and the peer calls back /api/dialback.
// This server does not deliver on its own yet; deps.Deps carries the
// client for that caller.
type Client struct {
	store    *ChallengeStore
	http     httpclient.HTTPClient
	now      func() time.Time
	metrics  *Metrics
	maxBytes int64
	redact   logutil.Redactor
	log      *slog.Logger
}

// NewClient creates a dialback client.
func NewClient(cs *ChallengeStore, hc httpclient.HTTPClient, opts ClientOptions, log *slog.Logger) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = defaultMaxResponseBytes
	}
	return &Client{
		store:    cs,
		http:     hc,
		now:      opts.Now,
		metrics:  opts.Metrics.orNoop(),
		maxBytes: opts.MaxResponseBytes,
		redact:   logutil.Redactor{AllowSensitive: opts.AllowSensitive},
		log:      logutil.NoopIfNil(log),
	}
}

// IssueChallenge signs and sends req. The challenge is stored before the
// request leaves, so a verification callback can never arrive first.
// Transport errors are returned as is; there are no retries.
func (c *Client) IssueChallenge(ctx context.Context, req Request) (*Response, error) {
	if !req.Identity.Valid() {
		return nil, fmt.Errorf("dialback: invalid identity %q", req.Identity.String())
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	token, err := NewToken()
	if err != nil {
		return nil, fmt.Errorf("dialback: failed to generate token: %w", err)
	}
	ts := CoarseTimestamp(c.now())

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpclient.ErrInvalidURL, err)
	}
	httpReq.Header.Set("Authorization", FormatAuthorization(req.Identity, token))
	httpReq.Header.Set("Date", FormatDate(ts))
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	ch := Challenge{Endpoint: req.Endpoint, Identity: req.Identity.String(), Token: token, Timestamp: ts}
	if err := c.store.Record(ctx, ch); err != nil {
		return nil, err
	}
	c.metrics.challengesIssued.Inc()
	c.log.Debug("dialback challenge issued",
		"endpoint", req.Endpoint,
		"identity", ch.Identity,
		c.redact.Secret("token", token))

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		c.metrics.issueFailures.Inc()
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		c.metrics.issueFailures.Inc()
		return nil, err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, httpclient.ErrResponseTooLarge
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
