// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/dialback"
	"github.com/MahdiBaghbani/fedgraph-go/internal/frameworks/service"
	cachememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	storememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"

	_ "github.com/MahdiBaghbani/fedgraph-go/internal/services/loader"
)

// trackingService is a test service that records when Close() is called.
type trackingService struct {
	name        string
	prefix      string
	unprotected []string
	closeOrder  *[]string
}

func (t *trackingService) Handler() http.Handler { return http.NotFoundHandler() }
func (t *trackingService) Prefix() string        { return t.prefix }
func (t *trackingService) Unprotected() []string { return t.unprotected }
func (t *trackingService) Close() error {
	if t.closeOrder != nil {
		*t.closeOrder = append(*t.closeOrder, t.name)
	}
	return nil
}

// Verify trackingService implements service.Service
var _ service.Service = (*trackingService)(nil)

func newTestDeps(t *testing.T, publicOrigin string) *deps.Deps {
	t.Helper()
	cfg := config.DevConfig()
	cfg.PublicOrigin = publicOrigin
	cfg.Repair.Enabled = new(bool)

	d, err := deps.Build(context.Background(), cfg, deps.Options{
		Store:      storememory.New(),
		Cache:      cachememory.New(time.Minute, 0),
		HTTPClient: httpclient.StdClient{Client: &http.Client{Timeout: 5 * time.Second}},
	}, nil)
	if err != nil {
		t.Fatalf("deps.Build: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// newCoreServer builds a server with the registered core services.
func newCoreServer(t *testing.T, d *deps.Deps) *Server {
	t.Helper()
	services, err := service.Build(service.CoreServices, d, nil)
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	srv, err := New(d.Config, d, nil, services)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestNew_FailsWithNilDeps(t *testing.T) {
	_, err := New(config.DevConfig(), nil, nil, nil)
	if !errors.Is(err, ErrMissingDeps) {
		t.Errorf("expected ErrMissingDeps, got: %v", err)
	}
}

func TestShutdown_ClosesServicesInReverseOrder(t *testing.T) {
	d := newTestDeps(t, "https://social.example")

	var closeOrder []string
	srv, err := New(d.Config, d, nil, map[string]service.Service{
		"a": &trackingService{name: "svc1", prefix: "svc1", closeOrder: &closeOrder},
		"b": &trackingService{name: "svc2", prefix: "svc2", closeOrder: &closeOrder},
		"c": &trackingService{name: "root", prefix: "", closeOrder: &closeOrder},
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// Prefixed services mount first in name order, the root service last.
	expected := []string{"root", "svc2", "svc1"}
	if len(closeOrder) != len(expected) {
		t.Fatalf("expected %d services closed, got %d: %v", len(expected), len(closeOrder), closeOrder)
	}
	for i, name := range expected {
		if closeOrder[i] != name {
			t.Errorf("close order[%d] = %q, want %q", i, closeOrder[i], name)
		}
	}
}

func TestStart_InvalidTLSModeFailsFast(t *testing.T) {
	d := newTestDeps(t, "https://social.example")
	d.Config.TLS.Mode = "acme"
	d.Config.ListenAddr = "127.0.0.1:0"

	srv, err := New(d.Config, d, nil, nil)
	if err != nil {
		t.Fatalf("server creation failed: %v", err)
	}
	if err := srv.Start(); err == nil {
		t.Error("expected Start to fail for an unknown TLS mode")
	}
}

func TestIsAuthRequired(t *testing.T) {
	mounted := []service.Service{
		&trackingService{prefix: "", unprotected: []string{"/.well-known/webfinger"}},
		&trackingService{prefix: "api", unprotected: []string{"/healthz", "/dialback", "GET /{type}/{uuid}"}},
	}

	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/.well-known/webfinger", false},
		{http.MethodGet, "/.well-known/host-meta.json", false},
		{http.MethodGet, "/metrics", false},
		{http.MethodGet, "/api/healthz", false},
		{http.MethodPost, "/api/dialback", false},
		{http.MethodGet, "/api/note/123", false},
		{http.MethodDelete, "/api/note/123", true},
		{http.MethodPost, "/api/objects", true},
		{http.MethodGet, "/api/note/123/extra", true},
		{http.MethodGet, "/unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if got := IsAuthRequired(req, mounted); got != tt.want {
				t.Errorf("IsAuthRequired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	d := newTestDeps(t, "https://social.example")
	h := newCoreServer(t, d).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/api/healthz", wantStatus: http.StatusOK},
		{name: "host-meta", method: http.MethodGet, path: "/.well-known/host-meta.json", wantStatus: http.StatusOK},
		{name: "webfinger", method: http.MethodGet, path: "/.well-known/webfinger?resource=acct:a@social.example", wantStatus: http.StatusOK},
		{name: "public object read", method: http.MethodGet, path: "/api/note/missing", wantStatus: http.StatusNotFound},
		{name: "unsigned push", method: http.MethodPost, path: "/api/objects", wantStatus: http.StatusUnauthorized},
		{name: "unsigned delete", method: http.MethodDelete, path: "/api/note/1", wantStatus: http.StatusUnauthorized},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dialback_authentications_total{outcome="no_credentials"} 2`) {
		t.Errorf("metrics missing rejected authentications:\n%s", rec.Body.String())
	}
}

// node is one running server reachable over real HTTP.
type node struct {
	deps *deps.Deps
	url  string
}

func startNode(t *testing.T) *node {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()
	d := newTestDeps(t, origin)
	ts.Config.Handler = newCoreServer(t, d).Handler()
	ts.Start()
	t.Cleanup(ts.Close)
	return &node{deps: d, url: origin}
}

func TestDialbackRoundTrip(t *testing.T) {
	alice := startNode(t)
	bob := startNode(t)
	ctx := context.Background()

	note := map[string]any{
		"id":         alice.url + "/api/note/shared-1",
		"objectType": "note",
		"content":    "hello bob",
	}
	body, err := json.Marshal(note)
	if err != nil {
		t.Fatal(err)
	}

	// Alice signs a push to Bob; Bob calls Alice back to verify it.
	resp, err := alice.deps.DialbackClient.IssueChallenge(ctx, dialback.Request{
		Method:      http.MethodPost,
		Endpoint:    bob.url + "/api/objects",
		Identity:    dialback.HostIdentity(alice.deps.Config.LocalDomain()),
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("push status = %d: %s", resp.StatusCode, resp.Body)
	}

	stored, err := bob.deps.Objects.Get(ctx, "note", alice.url+"/api/note/shared-1")
	if err != nil {
		t.Fatalf("bob does not have the note: %v", err)
	}
	if stored.Content != "hello bob" {
		t.Errorf("content = %q", stored.Content)
	}

	// The object is now readable from Bob without authentication.
	r, err := http.Get(bob.url + "/api/note/" + stored.UUID)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	got, _ := io.ReadAll(r.Body)
	if r.StatusCode != http.StatusOK || !strings.Contains(string(got), "hello bob") {
		t.Errorf("public read: status %d body %s", r.StatusCode, got)
	}
}

func TestDialbackRoundTrip_ForeignObjectRejected(t *testing.T) {
	alice := startNode(t)
	bob := startNode(t)

	// Alice proves her identity but pushes an object under Bob's origin.
	body, _ := json.Marshal(map[string]any{
		"id":         "http://elsewhere.example/api/note/1",
		"objectType": "note",
	})
	resp, err := alice.deps.DialbackClient.IssueChallenge(context.Background(), dialback.Request{
		Endpoint:    bob.url + "/api/objects",
		Identity:    dialback.HostIdentity(alice.deps.Config.LocalDomain()),
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
