// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
)

func newPeer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(HostMetaPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/jrd+json")
		json.NewEncoder(w).Encode(Document{Links: []Link{
			{Rel: "lrdd", Template: "x"},
			{Rel: "dialback", Href: "http://" + r.Host + "/api/dialback"},
		}})
	})
	mux.HandleFunc(WebfingerPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		resource := r.URL.Query().Get("resource")
		if !strings.HasPrefix(resource, "acct:bob@") && !strings.HasPrefix(resource, "http") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(Document{Subject: resource, Links: []Link{
			{Rel: "activity-inbox", Href: "http://" + r.Host + "/api/user/bob/inbox"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := memory.New(time.Minute, time.Minute)
	t.Cleanup(func() { c.Close() })
	return NewClient(httpclient.StdClient{Client: http.DefaultClient}, c, Options{Scheme: "http"}, nil)
}

func TestHostMeta_FetchesAndCaches(t *testing.T) {
	var hits int32
	srv := newPeer(t, &hits)
	host := strings.TrimPrefix(srv.URL, "http://")
	c := newTestClient(t)

	for i := 0; i < 2; i++ {
		doc, err := c.HostMeta(context.Background(), host)
		if err != nil {
			t.Fatalf("HostMeta: %v", err)
		}
		if got := doc.Link("dialback"); got != srv.URL+"/api/dialback" {
			t.Errorf("dialback link = %q", got)
		}
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (cached)", hits)
	}
}

func TestWebfinger(t *testing.T) {
	var hits int32
	srv := newPeer(t, &hits)
	host := strings.TrimPrefix(srv.URL, "http://")
	c := newTestClient(t)

	tests := []struct {
		name     string
		resource string
		wantErr  error
		wantLink bool
	}{
		{name: "account without prefix", resource: "bob@" + host, wantLink: true},
		{name: "account with prefix", resource: "acct:bob@" + host, wantLink: true},
		{name: "http resource", resource: srv.URL + "/api/person/bob", wantLink: true},
		{name: "unknown account", resource: "acct:nobody@" + host, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := c.Webfinger(context.Background(), tt.resource)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Webfinger: %v", err)
			}
			if tt.wantLink && doc.Link("activity-inbox") == "" {
				t.Errorf("missing activity-inbox link: %+v", doc)
			}
		})
	}
}

func TestWebfinger_InvalidResource(t *testing.T) {
	c := newTestClient(t)
	if _, err := c.Webfinger(context.Background(), "no-at-sign"); err == nil {
		t.Error("expected error for invalid resource")
	}
}

func TestHostMeta_InvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<xrd/>"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.HostMeta(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("error = %v, want ErrInvalidDocument", err)
	}
}

func TestHostMeta_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t)
	if _, err := c.HostMeta(context.Background(), strings.TrimPrefix(srv.URL, "http://")); err == nil {
		t.Error("expected error for 502")
	}
}
