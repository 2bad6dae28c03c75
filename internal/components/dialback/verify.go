// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/hostport"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/instanceid"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

// DefaultWindow is the accepted clock distance between a challenge date
// and now, in either direction.
const DefaultWindow = 300000 * time.Millisecond

// Rejection reasons, also the verification endpoint's response bodies.
const (
	ReasonNoIdentity    = "No identity"
	ReasonIncorrectHost = "Incorrect host"
	ReasonNoToken       = "No token"
	ReasonNoDate        = "No date"
	ReasonInvalidDate   = "Invalid date"
	ReasonNotMyToken    = "Not my token"
)

var reasonLabels = map[string]string{
	ReasonNoIdentity:    "no_identity",
	ReasonIncorrectHost: "incorrect_host",
	ReasonNoToken:       "no_token",
	ReasonNoDate:        "no_date",
	ReasonInvalidDate:   "invalid_date",
	ReasonNotMyToken:    "not_my_token",
}

// VerifyRequest is a verification callback as received from a peer.
type VerifyRequest struct {
	Host      string
	Webfinger string
	Token     string
	Date      string
	URL       string
}

// Result is the outcome of a verification. Rejection is an expected
// outcome, not an error.
type Result struct {
	Accepted bool
	Reason   string
}

func reject(reason string) Result {
	return Result{Reason: reason}
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// PublicOrigin determines the local domain identities must belong to.
	PublicOrigin string
	Window       time.Duration
	Now          func() time.Time
}

// Verifier answers verification callbacks for challenges this server
// issued.
type Verifier struct {
	store       *ChallengeStore
	localDomain string
	scheme      string
	window      time.Duration
	now         func() time.Time
	metrics     *Metrics
	log         *slog.Logger
}

// NewVerifier creates a verifier for the instance at cfg.PublicOrigin.
func NewVerifier(cs *ChallengeStore, cfg VerifierConfig, m *Metrics, log *slog.Logger) (*Verifier, error) {
	domain := instanceid.LocalDomain(cfg.PublicOrigin)
	if domain == "" {
		return nil, fmt.Errorf("dialback: cannot derive local domain from %q", cfg.PublicOrigin)
	}
	u, _ := url.Parse(cfg.PublicOrigin)
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		store:       cs,
		localDomain: domain,
		scheme:      u.Scheme,
		window:      cfg.Window,
		now:         cfg.Now,
		metrics:     m.orNoop(),
		log:         logutil.NoopIfNil(log),
	}, nil
}

// LocalDomain returns the domain this verifier vouches for.
func (v *Verifier) LocalDomain() string {
	return v.localDomain
}

// VerifyChallenge checks, in order: the identity belongs to this server, a
// token is present, the date is present and parseable, the date is inside
// the window, and this server recorded exactly this challenge.
func (v *Verifier) VerifyChallenge(ctx context.Context, req VerifyRequest) Result {
	res := v.verify(ctx, req)
	outcome := "accepted"
	if !res.Accepted {
		outcome = reasonLabels[res.Reason]
	}
	v.metrics.verifications.WithLabelValues(outcome).Inc()
	return res
}

func (v *Verifier) verify(ctx context.Context, req VerifyRequest) Result {
	var id Identity
	switch {
	case req.Host != "":
		id = HostIdentity(req.Host)
	case req.Webfinger != "":
		id = WebfingerIdentity(req.Webfinger)
	default:
		return reject(ReasonNoIdentity)
	}
	if !hostport.Equal(id.Domain(), v.localDomain, v.scheme) {
		return reject(ReasonIncorrectHost)
	}

	if req.Token == "" {
		return reject(ReasonNoToken)
	}

	if req.Date == "" {
		return reject(ReasonNoDate)
	}
	ts, err := ParseDate(req.Date)
	if err != nil {
		return reject(ReasonInvalidDate)
	}
	if skew := v.now().UnixMilli() - ts; skew > v.window.Milliseconds() || -skew > v.window.Milliseconds() {
		return reject(ReasonInvalidDate)
	}

	ok, err := v.store.Has(ctx, Challenge{Endpoint: req.URL, Identity: id.String(), Token: req.Token, Timestamp: ts})
	if err != nil {
		v.log.Warn("dialback challenge lookup failed", "error", err)
		return reject(ReasonNotMyToken)
	}
	if !ok {
		return reject(ReasonNotMyToken)
	}
	return Result{Accepted: true}
}
