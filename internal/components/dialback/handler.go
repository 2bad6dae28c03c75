// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"net/http"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
)

// Handler serves the verification endpoint. Peers POST the form fields
// host or webfinger, token, date and url; the reply is 200 "OK" or 400 with
// the rejection reason.
func Handler(v *Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeText(w, http.StatusBadRequest, "Invalid request")
			return
		}

		res := v.VerifyChallenge(r.Context(), VerifyRequest{
			Host:      r.PostForm.Get("host"),
			Webfinger: r.PostForm.Get("webfinger"),
			Token:     r.PostForm.Get("token"),
			Date:      r.PostForm.Get("date"),
			URL:       r.PostForm.Get("url"),
		})
		if !res.Accepted {
			appctx.GetLogger(r.Context()).Debug("dialback verification rejected", "reason", res.Reason)
			writeText(w, http.StatusBadRequest, res.Reason)
			return
		}
		writeText(w, http.StatusOK, "OK")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
