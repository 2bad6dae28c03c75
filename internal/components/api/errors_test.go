// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
)

func TestWriteError_EnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusForbidden, api.ReasonNotOwner, "object belongs to another domain")

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var raw map[string]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"code":        "Forbidden",
		"reason_code": "not_owner",
		"message":     "object belongs to another domain",
	}
	for k, v := range want {
		if raw["error"][k] != v {
			t.Errorf("error.%s = %q, want %q", k, raw["error"][k], v)
		}
	}
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantReason string
	}{
		{"bad request", func(w http.ResponseWriter) { api.WriteBadRequest(w, api.ReasonInvalidField, "content") }, http.StatusBadRequest, "invalid_field"},
		{"unauthorized", func(w http.ResponseWriter) { api.WriteUnauthorized(w, api.ReasonUnauthenticated, "no") }, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", func(w http.ResponseWriter) { api.WriteForbidden(w, api.ReasonNotOwner, "no") }, http.StatusForbidden, "not_owner"},
		{"not found", func(w http.ResponseWriter) { api.WriteNotFound(w, "missing") }, http.StatusNotFound, "not_found"},
		{"gone", func(w http.ResponseWriter) { api.WriteGone(w, "deleted") }, http.StatusGone, "gone"},
		{"too many requests", func(w http.ResponseWriter) { api.WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, "rate_limited"},
		{"internal", func(w http.ResponseWriter) { api.WriteInternalError(w, "oops") }, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var envelope api.ErrorEnvelope
			if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if envelope.Error.ReasonCode != tt.wantReason {
				t.Errorf("reason_code = %q, want %q", envelope.Error.ReasonCode, tt.wantReason)
			}
			if envelope.Error.Code != http.StatusText(tt.wantStatus) {
				t.Errorf("code = %q", envelope.Error.Code)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	api.HealthHandler("sqlite")(w, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body api.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Store != "sqlite" {
		t.Errorf("health = %+v", body)
	}
}
