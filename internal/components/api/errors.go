// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package api holds the JSON response helpers shared by the HTTP services.
package api

import (
	"encoding/json"
	"net/http"
)

// Reason codes carried in error envelopes. Clients match on these, so
// they never change once published.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonRateLimited     = "rate_limited"
	ReasonBadRequest      = "bad_request"
	ReasonInvalidField    = "invalid_field"
	ReasonUnknownType     = "unknown_type"
	ReasonNotOwner        = "not_owner"
	ReasonNotFound        = "not_found"
	ReasonGone            = "gone"
	ReasonInternalError   = "internal_error"
)

// ErrorEnvelope is the body of every error response:
//
//	{"error": {"code": "Gone", "reason_code": "gone", "message": "..."}}
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner error object. Code is the HTTP status text.
type ErrorDetail struct {
	Code       string `json:"code"`
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, reason, message string) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorDetail{
		Code:       http.StatusText(status),
		ReasonCode: reason,
		Message:    message,
	}})
}

func WriteBadRequest(w http.ResponseWriter, reason, message string) {
	WriteError(w, http.StatusBadRequest, reason, message)
}

func WriteUnauthorized(w http.ResponseWriter, reason, message string) {
	WriteError(w, http.StatusUnauthorized, reason, message)
}

func WriteForbidden(w http.ResponseWriter, reason, message string) {
	WriteError(w, http.StatusForbidden, reason, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteGone reports a tombstoned object.
func WriteGone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, ReasonGone, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500. The message reaches the client, so it
// must not carry internal detail.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}
