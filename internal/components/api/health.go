// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package api

import (
	"net/http"
)

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// HealthHandler handles GET /api/healthz. storeDriver is reported as is.
func HealthHandler(storeDriver string) http.HandlerFunc {
	body := HealthResponse{Status: "ok", Store: storeDriver}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}
