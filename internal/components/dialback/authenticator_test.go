// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/discovery"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	cachememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
)

// lateHandler lets a test server start before its handler exists, so the
// handler can be built with the server's own URL.
type lateHandler struct{ h http.Handler }

func (l *lateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { l.h.ServeHTTP(w, r) }

type origin struct {
	srv    *httptest.Server
	client *Client
	domain string
}

// newOrigin starts a server that signs requests and answers host-meta and
// verification callbacks.
func newOrigin(t *testing.T) *origin {
	t.Helper()
	late := &lateHandler{}
	srv := httptest.NewServer(late)
	t.Cleanup(srv.Close)

	cs := NewChallengeStore(memory.New(), StoreConfig{}, nil)
	v, err := NewVerifier(cs, VerifierConfig{PublicOrigin: srv.URL}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(discovery.HostMetaPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(discovery.Document{Links: []discovery.Link{
			{Rel: "dialback", Href: srv.URL + "/api/dialback"},
		}})
	})
	mux.Handle("/api/dialback", Handler(v))
	late.h = mux

	return &origin{
		srv:    srv,
		client: NewClient(cs, httpclient.StdClient{}, ClientOptions{}, nil),
		domain: v.LocalDomain(),
	}
}

// newReceiver starts a server whose /inbox requires dialback authentication.
func newReceiver(t *testing.T, now func() time.Time) *httptest.Server {
	t.Helper()
	late := &lateHandler{}
	srv := httptest.NewServer(late)
	t.Cleanup(srv.Close)

	replay := cachememory.New(time.Minute, time.Minute)
	t.Cleanup(func() { replay.Close() })
	dc := discovery.NewClient(httpclient.StdClient{}, nil, discovery.Options{Scheme: "http"}, nil)
	auth, err := NewAuthenticator(dc, httpclient.StdClient{}, replay, AuthenticatorConfig{PublicOrigin: srv.URL, Now: now}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/inbox", auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		party, _ := appctx.RemotePartyFromContext(r.Context())
		io.WriteString(w, party.Kind+"="+party.ID)
	})))
	late.h = mux
	return srv
}

func TestAuthenticator_EndToEnd(t *testing.T) {
	ctx := context.Background()
	o := newOrigin(t)
	recv := newReceiver(t, nil)

	resp, err := o.client.IssueChallenge(ctx, Request{
		Endpoint:    recv.URL + "/inbox",
		Identity:    HostIdentity(o.domain),
		Body:        []byte(`{}`),
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, resp.Body)
	}
	if want := "host=" + o.domain; string(resp.Body) != want {
		t.Errorf("authenticated party = %q, want %q", resp.Body, want)
	}
}

func TestAuthenticator_Rejections(t *testing.T) {
	o := newOrigin(t)
	recv := newReceiver(t, nil)
	now := time.Now()

	send := func(t *testing.T, auth, date string) int {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, recv.URL+"/inbox", strings.NewReader("{}"))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		if date != "" {
			req.Header.Set("Date", date)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") != Scheme {
			t.Errorf("missing WWW-Authenticate challenge")
		}
		return resp.StatusCode
	}

	tests := []struct {
		name string
		auth string
		date string
	}{
		{name: "no credentials", date: FormatDate(now.UnixMilli())},
		{name: "malformed", auth: "Dialback nonsense", date: FormatDate(now.UnixMilli())},
		{name: "no date", auth: FormatAuthorization(HostIdentity(o.domain), "tok")},
		{name: "stale date", auth: FormatAuthorization(HostIdentity(o.domain), "tok"), date: FormatDate(now.Add(-10 * time.Minute).UnixMilli())},
		{name: "forged token", auth: FormatAuthorization(HostIdentity(o.domain), "forged"), date: FormatDate(CoarseTimestamp(now))},
		{name: "undiscoverable party", auth: FormatAuthorization(HostIdentity("127.0.0.1:1"), "tok"), date: FormatDate(CoarseTimestamp(now))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := send(t, tt.auth, tt.date); got != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", got)
			}
		})
	}
}

// recordingClient remembers the headers of the last request it sent.
type recordingClient struct {
	inner  httpclient.HTTPClient
	header http.Header
}

func (c *recordingClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.header = req.Header.Clone()
	return c.inner.Do(ctx, req)
}

func TestAuthenticator_RejectsReplay(t *testing.T) {
	ctx := context.Background()
	o := newOrigin(t)
	recv := newReceiver(t, nil)

	rc := &recordingClient{inner: httpclient.StdClient{}}
	o.client.http = rc

	target := recv.URL + "/inbox"
	resp, err := o.client.IssueChallenge(ctx, Request{Endpoint: target, Identity: HostIdentity(o.domain)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first delivery status = %d", resp.StatusCode)
	}

	replay, _ := http.NewRequest(http.MethodPost, target, nil)
	replay.Header.Set("Authorization", rc.header.Get("Authorization"))
	replay.Header.Set("Date", rc.header.Get("Date"))
	again, err := http.DefaultClient.Do(replay)
	if err != nil {
		t.Fatal(err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusUnauthorized {
		t.Errorf("replayed request status = %d, want 401", again.StatusCode)
	}
}
