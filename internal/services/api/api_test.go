// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/dialback"
	_ "github.com/MahdiBaghbani/fedgraph-go/internal/interceptors/ratelimit"
	cachememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/fedgraph-go/internal/platform/http/client"
	storememory "github.com/MahdiBaghbani/fedgraph-go/internal/platform/store/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDeps(t *testing.T) *deps.Deps {
	t.Helper()
	cfg := config.DevConfig()
	cfg.PublicOrigin = "https://social.example"
	cfg.Repair.Enabled = new(bool)

	d, err := deps.Build(context.Background(), cfg, deps.Options{
		Store:      storememory.New(),
		Cache:      cachememory.New(time.Minute, 0),
		HTTPClient: httpclient.StdClient{Client: http.DefaultClient},
		Now:        func() time.Time { return testNow },
	}, nil)
	if err != nil {
		t.Fatalf("deps.Build: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTestHandler(t *testing.T, d *deps.Deps, conf map[string]any) http.Handler {
	t.Helper()
	svc, err := New(conf, d, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc.Handler()
}

func asParty(r *http.Request, kind, id string) *http.Request {
	return r.WithContext(appctx.WithRemoteParty(r.Context(), appctx.RemoteParty{Kind: kind, ID: id}))
}

func TestService_PrefixAndUnprotected(t *testing.T) {
	svc, err := New(nil, newTestDeps(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Prefix() != "api" {
		t.Errorf("expected prefix 'api', got %q", svc.Prefix())
	}

	expected := map[string]bool{"/healthz": false, "/dialback": false, "GET /{type}/{uuid}": false}
	for _, p := range svc.Unprotected() {
		if _, ok := expected[p]; ok {
			expected[p] = true
		}
	}
	for p, found := range expected {
		if !found {
			t.Errorf("expected unprotected path %q not found", p)
		}
	}
}

func TestNew_UnknownRatelimitProfile(t *testing.T) {
	_, err := New(map[string]any{"ratelimit": map[string]any{"profile": "missing"}}, newTestDeps(t), nil)
	if err == nil {
		t.Error("expected error for unconfigured ratelimit profile")
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, newTestDeps(t), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["store"] != "memory" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestDialbackCallback(t *testing.T) {
	d := newTestDeps(t)
	h := newTestHandler(t, d, nil)

	ts := testNow.UnixMilli()
	if err := d.Challenges.Record(context.Background(), dialback.Challenge{
		Endpoint:  "https://peer.example/api/objects",
		Identity:  "host=social.example",
		Token:     "tok-1",
		Timestamp: ts,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{name: "issued challenge", token: "tok-1", wantStatus: http.StatusOK, wantBody: "OK"},
		{name: "unknown token", token: "tok-2", wantStatus: http.StatusBadRequest, wantBody: dialback.ReasonNotMyToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{
				"host":  {"social.example"},
				"token": {tt.token},
				"date":  {dialback.FormatDate(ts)},
				"url":   {"https://peer.example/api/objects"},
			}
			req := httptest.NewRequest(http.MethodPost, "/dialback", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestGetObject(t *testing.T) {
	d := newTestDeps(t)
	h := newTestHandler(t, d, nil)
	ctx := context.Background()

	note, err := d.Objects.EnsureObject(ctx, map[string]any{"objectType": "note", "content": "hello"})
	if err != nil {
		t.Fatalf("EnsureObject: %v", err)
	}
	gone, err := d.Objects.EnsureObject(ctx, map[string]any{"objectType": "note", "content": "bye"})
	if err != nil {
		t.Fatalf("EnsureObject: %v", err)
	}
	if _, err := d.Objects.DeleteByUUID(ctx, "note", gone.UUID); err != nil {
		t.Fatalf("DeleteByUUID: %v", err)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantReason string
	}{
		{name: "stored", path: "/note/" + note.UUID, wantStatus: http.StatusOK},
		{name: "tombstoned", path: "/note/" + gone.UUID, wantStatus: http.StatusGone, wantReason: "gone"},
		{name: "never existed", path: "/note/nope", wantStatus: http.StatusNotFound, wantReason: "not_found"},
		{name: "unknown type", path: "/widget/" + note.UUID, wantStatus: http.StatusBadRequest, wantReason: "unknown_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantReason != "" {
				errBody, _ := body["error"].(map[string]any)
				if errBody["reason_code"] != tt.wantReason {
					t.Errorf("reason_code = %v, want %q", errBody["reason_code"], tt.wantReason)
				}
				return
			}
			if body["id"] != note.ID || body["content"] != "hello" {
				t.Errorf("unexpected object: %v", body)
			}
			if _, ok := body[activity.PropUUID]; ok {
				t.Error("private _uuid leaked into API output")
			}
			replies, _ := body["replies"].(map[string]any)
			if replies["totalItems"] != float64(0) {
				t.Errorf("replies = %v, want totalItems 0", replies)
			}
		})
	}
}

func pushRequest(t *testing.T, props map[string]any) *http.Request {
	t.Helper()
	body, err := json.Marshal(props)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/objects", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPushObject(t *testing.T) {
	d := newTestDeps(t)
	h := newTestHandler(t, d, nil)

	remote := map[string]any{
		"id":         "https://peer.example/api/note/1",
		"objectType": "note",
		"content":    "from afar",
		"_uuid":      "forged",
	}

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{name: "unauthenticated", req: pushRequest(t, remote), wantStatus: http.StatusUnauthorized},
		{name: "owner host", req: asParty(pushRequest(t, remote), dialback.KindHost, "peer.example"), wantStatus: http.StatusOK},
		{name: "idempotent", req: asParty(pushRequest(t, remote), dialback.KindHost, "peer.example"), wantStatus: http.StatusOK},
		{name: "owner account", req: asParty(pushRequest(t, remote), dialback.KindWebfinger, "acct:bob@peer.example"), wantStatus: http.StatusOK},
		{name: "other domain", req: asParty(pushRequest(t, remote), dialback.KindHost, "evil.example"), wantStatus: http.StatusForbidden},
		{
			name:       "local id",
			req:        asParty(pushRequest(t, map[string]any{"id": "https://social.example/api/note/x", "objectType": "note"}), dialback.KindHost, "social.example"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing id",
			req:        asParty(pushRequest(t, map[string]any{"objectType": "note"}), dialback.KindHost, "peer.example"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid shape",
			req: asParty(pushRequest(t, map[string]any{
				"id": "https://peer.example/api/note/2", "objectType": "note", "content": 42,
			}), dialback.KindHost, "peer.example"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "fractional reply count",
			req: asParty(pushRequest(t, map[string]any{
				"id": "https://peer.example/api/note/3", "objectType": "note",
				"replies": map[string]any{"url": "https://peer.example/api/note/3/replies", "totalItems": 1.5},
			}), dialback.KindHost, "peer.example"),
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	stored, err := d.Objects.Get(context.Background(), "note", "https://peer.example/api/note/1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.UUID == "" || stored.UUID == "forged" {
		t.Errorf("uuid = %q, want a locally minted one", stored.UUID)
	}
	if stored.Content != "from afar" {
		t.Errorf("content = %q", stored.Content)
	}
}

func TestPushObject_NestedUUIDCannotTakeLocalRoute(t *testing.T) {
	d := newTestDeps(t)
	h := newTestHandler(t, d, nil)
	ctx := context.Background()

	local, err := d.Objects.EnsureObject(ctx, map[string]any{"objectType": "person", "displayName": "Alice"})
	if err != nil {
		t.Fatalf("EnsureObject: %v", err)
	}

	req := asParty(pushRequest(t, map[string]any{
		"id":         "https://peer.example/api/note/9",
		"objectType": "note",
		"author": map[string]any{
			"id":          "https://peer.example/api/person/mallory",
			"objectType":  "person",
			"displayName": "Mallory",
			"_uuid":       local.UUID,
		},
	}), dialback.KindHost, "peer.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/person/"+local.UUID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != local.ID || body["displayName"] != "Alice" {
		t.Errorf("GET /person/%s = %v, want the local person", local.UUID, body)
	}
}

func TestPushObject_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, newTestDeps(t), map[string]any{"max_body_bytes": 16})
	req := asParty(pushRequest(t, map[string]any{
		"id": "https://peer.example/api/note/1", "objectType": "note", "content": strings.Repeat("x", 64),
	}), dialback.KindHost, "peer.example")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteObject(t *testing.T) {
	d := newTestDeps(t)
	h := newTestHandler(t, d, nil)
	ctx := context.Background()

	remote, err := d.Objects.EnsureObject(ctx, map[string]any{
		"id": "https://peer.example/api/note/1", "objectType": "note", "content": "x",
	})
	if err != nil {
		t.Fatalf("EnsureObject: %v", err)
	}
	local, err := d.Objects.EnsureObject(ctx, map[string]any{"objectType": "note", "content": "mine"})
	if err != nil {
		t.Fatalf("EnsureObject: %v", err)
	}

	del := func(path, kind, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		if kind != "" {
			req = asParty(req, kind, id)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := del("/note/"+remote.UUID, "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated delete: status = %d, want 401", rec.Code)
	}
	if rec := del("/note/"+remote.UUID, dialback.KindHost, "evil.example"); rec.Code != http.StatusForbidden {
		t.Errorf("foreign delete: status = %d, want 403", rec.Code)
	}
	if rec := del("/note/"+local.UUID, dialback.KindHost, "peer.example"); rec.Code != http.StatusForbidden {
		t.Errorf("local object delete: status = %d, want 403", rec.Code)
	}
	if rec := del("/note/"+remote.UUID, dialback.KindHost, "peer.example"); rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: status = %d, want 204", rec.Code)
	}
	if rec := del("/note/"+remote.UUID, dialback.KindHost, "peer.example"); rec.Code != http.StatusGone {
		t.Errorf("repeat delete: status = %d, want 410", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/note/"+remote.UUID, nil))
	if rec.Code != http.StatusGone {
		t.Errorf("read after delete: status = %d, want 410", rec.Code)
	}
}

func TestDialbackCallback_RateLimited(t *testing.T) {
	d := newTestDeps(t)
	d.Config.HTTP.Interceptors = map[string]map[string]any{
		"ratelimit": {
			"profiles": map[string]any{
				"callbacks": map[string]any{"requests_per_window": 1, "window": "1m"},
			},
		},
	}
	h := newTestHandler(t, d, map[string]any{"ratelimit": map[string]any{"profile": "callbacks"}})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/dialback", strings.NewReader("token=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		_, _ = io.Copy(io.Discard, rec.Body)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [400 429]", codes)
	}
}
