// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package httpwrap holds handler wrappers shared by the mounted services.
package httpwrap

import "net/http"

// ClearRawPath drops r.URL.RawPath so chi routes on the decoded path. An
// object uuid sent as "a%2Fb" then fails to match /{type}/{uuid} instead of
// routing on the encoded form.
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}
