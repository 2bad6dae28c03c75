// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/dialback"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/objects"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/hostport"
)

type objectHandler struct {
	objects      *objects.Resolver
	maxBodyBytes int64
}

// handleGet serves GET /api/{type}/{uuid}.
func (h *objectHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	obj, err := h.objects.GetByUUID(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "uuid"))
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, obj.Sanitize())
}

// handlePush serves POST /api/objects: an authenticated peer delivers one
// of its own objects, which is stored or, when already known, returned.
func (h *objectHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	party, ok := appctx.RemotePartyFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "dialback authentication required")
		return
	}

	var props map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&props); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "body must be a JSON object")
		return
	}

	id, _ := props["id"].(string)
	if id == "" {
		api.WriteBadRequest(w, api.ReasonInvalidField, "id is required")
		return
	}
	if h.objects.IsLocal(id) || !ownedBy(id, party) {
		api.WriteForbidden(w, api.ReasonNotOwner, "object id is outside the authenticated domain")
		return
	}

	obj, err := h.objects.EnsureObject(r.Context(), props)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	appctx.GetLogger(r.Context()).Debug("object received", "id", obj.ID, "from", party.ID)
	api.WriteJSON(w, http.StatusOK, obj.Sanitize())
}

// handleDelete serves DELETE /api/{type}/{uuid}: a peer retracts the
// stored copy of one of its own objects.
func (h *objectHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	party, ok := appctx.RemotePartyFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "dialback authentication required")
		return
	}

	objectType, uuid := chi.URLParam(r, "type"), chi.URLParam(r, "uuid")
	obj, err := h.objects.GetByUUID(r.Context(), objectType, uuid)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	if h.objects.IsLocal(obj.ID) || !ownedBy(obj.ID, party) {
		api.WriteForbidden(w, api.ReasonNotOwner, "object belongs to another domain")
		return
	}

	if _, err := h.objects.DeleteByUUID(r.Context(), objectType, uuid); err != nil {
		writeObjectError(w, r, err)
		return
	}
	appctx.GetLogger(r.Context()).Info("object retracted", "id", obj.ID, "by", party.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedBy reports whether id lives under the domain the party proved.
func ownedBy(id string, party appctx.RemoteParty) bool {
	domain := dialback.Identity{Kind: party.Kind, Value: party.ID}.Domain()
	return hostport.URLOnHost(id, domain)
}

func writeObjectError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *activity.ValidationError
		unknown *objects.UnknownTypeError
	)
	switch {
	case errors.As(err, &verr):
		api.WriteBadRequest(w, api.ReasonInvalidField, verr.Error())
	case errors.As(err, &unknown):
		api.WriteBadRequest(w, api.ReasonUnknownType, unknown.Error())
	case errors.Is(err, objects.ErrGone):
		api.WriteGone(w, "object was deleted")
	case errors.Is(err, objects.ErrNotFound):
		api.WriteNotFound(w, "object not found")
	default:
		appctx.GetLogger(r.Context()).Error("object operation failed", "error", err)
		api.WriteInternalError(w, "object operation failed")
	}
}
