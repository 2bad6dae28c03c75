// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package activity defines the federated object model: the closed set of
// object types, the object document with its reference and feed stubs, and
// shape validation for ad hoc input.
package activity

import "sort"

// Type tags in the known registry.
const (
	TypeAlert        = "alert"
	TypeApplication  = "application"
	TypeArticle      = "article"
	TypeAudio        = "audio"
	TypeBadge        = "badge"
	TypeBinary       = "binary"
	TypeBookmark     = "bookmark"
	TypeCollection   = "collection"
	TypeComment      = "comment"
	TypeDevice       = "device"
	TypeEvent        = "event"
	TypeFile         = "file"
	TypeGame         = "game"
	TypeGroup        = "group"
	TypeImage        = "image"
	TypeIssue        = "issue"
	TypeJob          = "job"
	TypeNote         = "note"
	TypeOffer        = "offer"
	TypeOrganization = "organization"
	TypePage         = "page"
	TypePerson       = "person"
	TypePlace        = "place"
	TypeProcess      = "process"
	TypeProduct      = "product"
	TypeQuestion     = "question"
	TypeReview       = "review"
	TypeService      = "service"
	TypeTask         = "task"
	TypeVideo        = "video"
)

// Feed names. Every local object carries the common feeds; some types add
// their own.
const (
	FeedReplies   = "replies"
	FeedLikes     = "likes"
	FeedShares    = "shares"
	FeedMembers   = "members"
	FeedDocuments = "documents"
	FeedFollowers = "followers"
	FeedFollowing = "following"
	FeedFavorites = "favorites"
	FeedLists     = "lists"
)

// Link relations populated for local actors.
const (
	RelSelf           = "self"
	RelActivityInbox  = "activity-inbox"
	RelActivityOutbox = "activity-outbox"
	RelDialback       = "dialback"
)

// CommonFeeds are attached to every locally created object.
var CommonFeeds = []string{FeedReplies, FeedLikes, FeedShares}

// feedNames is every feed property recognized on the wire.
var feedNames = []string{
	FeedReplies, FeedLikes, FeedShares,
	FeedMembers, FeedDocuments,
	FeedFollowers, FeedFollowing, FeedFavorites, FeedLists,
}

// Descriptor is the per-type behavior looked up by tag.
type Descriptor struct {
	// Tag is the objectType value.
	Tag string

	// Feeds lists the type-specific feeds added to local objects of this type.
	Feeds []string

	// Actor types get self/inbox/outbox links when local and are candidates
	// for metadata repair when remote.
	Actor bool
}

// LocalFeeds returns the common feeds followed by the type-specific ones.
func (d *Descriptor) LocalFeeds() []string {
	out := make([]string, 0, len(CommonFeeds)+len(d.Feeds))
	out = append(out, CommonFeeds...)
	return append(out, d.Feeds...)
}

var registry = func() map[string]*Descriptor {
	tags := []string{
		TypeAlert, TypeApplication, TypeArticle, TypeAudio, TypeBadge,
		TypeBinary, TypeBookmark, TypeCollection, TypeComment, TypeDevice,
		TypeEvent, TypeFile, TypeGame, TypeGroup, TypeImage, TypeIssue,
		TypeJob, TypeNote, TypeOffer, TypeOrganization, TypePage,
		TypePerson, TypePlace, TypeProcess, TypeProduct, TypeQuestion,
		TypeReview, TypeService, TypeTask, TypeVideo,
	}
	m := make(map[string]*Descriptor, len(tags))
	for _, tag := range tags {
		m[tag] = &Descriptor{Tag: tag}
	}
	m[TypePerson].Feeds = []string{FeedFollowers, FeedFollowing, FeedFavorites, FeedLists}
	m[TypePerson].Actor = true
	m[TypeGroup].Feeds = []string{FeedMembers, FeedDocuments}
	return m
}()

// ToClass returns the descriptor for tag, or nil when the tag is not in the
// registry. Unknown tags are still storable as opaque objects.
func ToClass(tag string) *Descriptor {
	return registry[tag]
}

// KnownTypes returns the sorted list of registered tags.
func KnownTypes() []string {
	out := make([]string, 0, len(registry))
	for tag := range registry {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
