// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/discovery"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/instanceid"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

var (
	// ErrStaleDate means the Date header is missing, unparseable or outside
	// the window.
	ErrStaleDate = errors.New("dialback: date outside verification window")

	// ErrReplay means the same signed request was already seen.
	ErrReplay = errors.New("dialback: replayed request")

	// ErrNoEndpoint means the claimed party advertises no dialback endpoint.
	ErrNoEndpoint = errors.New("dialback: no dialback endpoint discovered")

	// ErrRejected means the claimed party refused to vouch for the request.
	ErrRejected = errors.New("dialback: verification rejected")
)

// AuthenticatorConfig configures an Authenticator.
type AuthenticatorConfig struct {
	// PublicOrigin is used to rebuild the URL the peer signed.
	PublicOrigin string
	Window       time.Duration
	ReplayTTL    time.Duration
	Now          func() time.Time
}

// Authenticator checks inbound Dialback-signed requests by calling back
// the claimed party's verification endpoint.
type Authenticator struct {
	discovery *discovery.Client
	http      httpclient.HTTPClient
	replay    cache.Cache
	origin    string
	window    time.Duration
	replayTTL time.Duration
	now       func() time.Time
	metrics   *Metrics
	log       *slog.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(dc *discovery.Client, hc httpclient.HTTPClient, replay cache.Cache, cfg AuthenticatorConfig, m *Metrics, log *slog.Logger) (*Authenticator, error) {
	origin, err := instanceid.NormalizePublicOrigin(cfg.PublicOrigin)
	if err != nil {
		return nil, fmt.Errorf("dialback: %w", err)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = cache.TTLReplay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{
		discovery: dc,
		http:      hc,
		replay:    replay,
		origin:    origin,
		window:    cfg.Window,
		replayTTL: cfg.ReplayTTL,
		now:       cfg.Now,
		metrics:   m.orNoop(),
		log:       logutil.NoopIfNil(log),
	}, nil
}

// Authenticate verifies r and returns the proven remote party.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (appctx.RemoteParty, error) {
	party, err := a.authenticate(ctx, r)
	outcome := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoCredentials):
		outcome = "no_credentials"
	case errors.Is(err, ErrMalformedHeader):
		outcome = "malformed"
	case errors.Is(err, ErrStaleDate):
		outcome = "invalid_date"
	case errors.Is(err, ErrReplay):
		outcome = "replay"
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	a.metrics.authentications.WithLabelValues(outcome).Inc()
	return party, err
}

func (a *Authenticator) authenticate(ctx context.Context, r *http.Request) (appctx.RemoteParty, error) {
	id, token, err := ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return appctx.RemoteParty{}, err
	}

	date := r.Header.Get("Date")
	ts, err := ParseDate(date)
	if err != nil {
		return appctx.RemoteParty{}, fmt.Errorf("%w: %v", ErrStaleDate, err)
	}
	if skew := a.now().UnixMilli() - ts; skew > a.window.Milliseconds() || -skew > a.window.Milliseconds() {
		return appctx.RemoteParty{}, ErrStaleDate
	}

	signedURL := a.origin + r.URL.RequestURI()

	fresh, err := a.replay.Add(ctx, replayKey(signedURL, id, token, ts), []byte("1"), a.replayTTL)
	if err != nil {
		return appctx.RemoteParty{}, fmt.Errorf("dialback: replay guard: %w", err)
	}
	if !fresh {
		return appctx.RemoteParty{}, ErrReplay
	}

	endpoint, err := a.endpointFor(ctx, id)
	if err != nil {
		return appctx.RemoteParty{}, err
	}

	form := url.Values{}
	form.Set(id.Kind, id.Value)
	form.Set("token", token)
	form.Set("date", date)
	form.Set("url", signedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return appctx.RemoteParty{}, fmt.Errorf("%w: %v", httpclient.ErrInvalidURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(ctx, req)
	if err != nil {
		return appctx.RemoteParty{}, fmt.Errorf("dialback callback to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	reason, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return appctx.RemoteParty{}, fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(reason)))
	}
	return appctx.RemoteParty{Kind: id.Kind, ID: id.Value}, nil
}

func (a *Authenticator) endpointFor(ctx context.Context, id Identity) (string, error) {
	var (
		doc *discovery.Document
		err error
	)
	switch id.Kind {
	case KindHost:
		doc, err = a.discovery.HostMeta(ctx, id.Value)
	case KindWebfinger:
		doc, err = a.discovery.Webfinger(ctx, id.Value)
	default:
		return "", ErrMalformedHeader
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoEndpoint, err)
	}
	endpoint := doc.Link(activity.RelDialback)
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	return endpoint, nil
}

func replayKey(signedURL string, id Identity, token string, ts int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\n%s\n%s\n%d", signedURL, id.String(), token, ts)))
	return "dialback:seen:" + hex.EncodeToString(sum[:])
}

// Middleware rejects requests that do not authenticate and attaches the
// remote party to the context of those that do.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		party, err := a.Authenticate(r.Context(), r)
		if err != nil {
			appctx.GetLogger(r.Context()).Info("dialback authentication failed", "error", err)
			w.Header().Set("WWW-Authenticate", Scheme)
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "dialback authentication failed")
			return
		}
		ctx := appctx.WithRemoteParty(r.Context(), party)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
