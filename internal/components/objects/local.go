// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package objects

import (
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
)

// LocalFeedURL is the collection URL of a feed owned by this server.
func LocalFeedURL(id, feed string) string {
	return id + "/" + feed
}

// LocalActorLinks returns the links every local actor carries.
func LocalActorLinks(id string) map[string]string {
	return map[string]string{
		activity.RelSelf:           id,
		activity.RelActivityInbox:  id + "/inbox",
		activity.RelActivityOutbox: id + "/outbox",
	}
}

func localFeeds(objectType string) []string {
	if d := activity.ToClass(objectType); d != nil {
		return d.LocalFeeds()
	}
	return activity.CommonFeeds
}

func isActor(objectType string) bool {
	d := activity.ToClass(objectType)
	return d != nil && d.Actor
}

// decorateLocal fills in feed stubs and actor links that are absent.
func decorateLocal(obj *activity.Object) {
	for _, feed := range localFeeds(obj.ObjectType) {
		if obj.Feed(feed) == nil {
			obj.SetFeed(feed, &activity.Collection{URL: LocalFeedURL(obj.ID, feed)})
		}
	}
	if isActor(obj.ObjectType) {
		for rel, href := range LocalActorLinks(obj.ID) {
			if obj.Link(rel) == "" {
				obj.SetLink(rel, href)
			}
		}
	}
}

// ApplyLocalMetadata rewrites the feed stubs and actor links of a local
// object to their deterministic values. It reports whether anything changed.
func ApplyLocalMetadata(obj *activity.Object) bool {
	changed := false
	for _, feed := range localFeeds(obj.ObjectType) {
		want := LocalFeedURL(obj.ID, feed)
		if c := obj.Feed(feed); c == nil || c.URL != want {
			obj.SetFeed(feed, &activity.Collection{URL: want})
			changed = true
		}
	}
	if isActor(obj.ObjectType) {
		for rel, href := range LocalActorLinks(obj.ID) {
			if obj.Link(rel) != href {
				obj.SetLink(rel, href)
				changed = true
			}
		}
	}
	return changed
}
