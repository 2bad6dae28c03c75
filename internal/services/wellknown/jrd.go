// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package wellknown

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/acct"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/api"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/discovery"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/objects"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/deps"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/instanceid"
)

const jrdContentType = "application/jrd+json"

// actorFeedRels are the feeds advertised as webfinger links for actors.
var actorFeedRels = []string{
	activity.FeedFollowers,
	activity.FeedFollowing,
	activity.FeedFavorites,
	activity.FeedLists,
}

type handler struct {
	objects     *objects.Resolver
	localDomain string
	dialback    string
	hostMetaDoc []byte
	log         *slog.Logger
}

func newHandler(c *Config, d *deps.Deps, log *slog.Logger) (*handler, error) {
	origin, err := instanceid.NormalizePublicOrigin(d.Config.PublicOrigin)
	if err != nil {
		return nil, err
	}
	h := &handler{
		objects:     d.Objects,
		localDomain: instanceid.LocalDomain(origin),
		dialback:    origin + c.DialbackPath,
		log:         log,
	}

	// host-meta is static, computed once.
	h.hostMetaDoc, err = json.Marshal(discovery.Document{
		Links: []discovery.Link{
			{Rel: activity.RelDialback, Href: h.dialback},
			{Rel: "lrdd", Type: jrdContentType, Template: origin + discovery.WebfingerPath + "?resource={uri}"},
		},
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *handler) hostMeta(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jrdContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.hostMetaDoc)
}

func (h *handler) webfinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		api.WriteBadRequest(w, api.ReasonBadRequest, "resource parameter is required")
		return
	}

	var (
		doc *discovery.Document
		err error
	)
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		doc, err = h.objectDocument(r, resource)
	} else {
		doc, err = h.accountDocument(resource)
	}

	switch {
	case err == nil:
		writeJRD(w, doc)
	case errors.Is(err, objects.ErrGone):
		api.WriteGone(w, "resource was deleted")
	case errors.Is(err, objects.ErrNotFound):
		api.WriteNotFound(w, "unknown resource")
	default:
		appctx.GetLogger(r.Context()).Error("webfinger lookup failed", "resource", resource, "error", err)
		api.WriteInternalError(w, "webfinger lookup failed")
	}
}

// accountDocument answers for any account at the local domain: the dialback
// endpoint is per server, not per account.
func (h *handler) accountDocument(resource string) (*discovery.Document, error) {
	_, domain, err := acct.Parse(resource)
	if err != nil || !strings.EqualFold(domain, h.localDomain) {
		return nil, objects.ErrNotFound
	}
	return &discovery.Document{
		Subject: acct.Canonical(resource),
		Links:   []discovery.Link{{Rel: activity.RelDialback, Href: h.dialback}},
	}, nil
}

// objectDocument describes a local object. Actors also list their inbox,
// outbox and social feeds, which is what peers repairing them read.
func (h *handler) objectDocument(r *http.Request, id string) (*discovery.Document, error) {
	objectType, uuid, ok := h.objects.ParseLocalID(id)
	if !ok {
		return nil, objects.ErrNotFound
	}
	obj, err := h.objects.GetByUUID(r.Context(), objectType, uuid)
	var unknown *objects.UnknownTypeError
	if errors.As(err, &unknown) {
		return nil, objects.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc := &discovery.Document{
		Subject: obj.ID,
		Links: []discovery.Link{
			{Rel: activity.RelSelf, Type: "application/json", Href: obj.ID},
			{Rel: activity.RelDialback, Href: h.dialback},
		},
	}
	if d := activity.ToClass(obj.ObjectType); d != nil && d.Actor {
		for _, rel := range []string{activity.RelActivityInbox, activity.RelActivityOutbox} {
			if href := obj.Link(rel); href != "" {
				doc.Links = append(doc.Links, discovery.Link{Rel: rel, Href: href})
			}
		}
		for _, feed := range actorFeedRels {
			if c := obj.Feed(feed); c != nil && c.URL != "" {
				doc.Links = append(doc.Links, discovery.Link{Rel: feed, Href: c.URL})
			}
		}
	}
	return doc, nil
}

func writeJRD(w http.ResponseWriter, doc *discovery.Document) {
	w.Header().Set("Content-Type", jrdContentType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(doc)
}
