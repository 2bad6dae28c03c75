// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Private properties carry local bookkeeping and never leave this server.
const (
	PropUUID   = "_uuid"
	PropRepair = "_repair"
)

// Object is a federated object. It holds either a full document or, when
// only ID and ObjectType are set, a reference to one stored elsewhere.
type Object struct {
	ID          string
	ObjectType  string
	UUID        string
	DisplayName string
	Content     string
	Summary     string
	URL         string
	Published   string
	Updated     string

	Author    *Object
	InReplyTo *Object
	Image     *MediaLink

	Attachments          []*Object
	UpstreamDuplicates   []string
	DownstreamDuplicates []string

	// Links maps a relation name to its target.
	Links map[string]Link

	// Feeds holds collection stubs keyed by feed name (replies, likes, ...).
	Feeds map[string]*Collection

	// Repair is the metadata reconciliation state of a remote actor.
	Repair *RepairState

	// Extra keeps properties this server does not model, so they survive a
	// store and reload unchanged.
	Extra map[string]json.RawMessage
}

// MediaLink describes an image or other media resource.
type MediaLink struct {
	URL      string   `json:"url"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// Link is a single relation target.
type Link struct {
	Href string `json:"href"`
}

// Collection is a feed stub. TotalItems is filled in on expansion when
// this server can count the members.
type Collection struct {
	URL        string `json:"url"`
	TotalItems *int   `json:"totalItems,omitempty"`
}

// RepairState is the backoff bookkeeping for a remote actor whose
// metadata failed to reconcile.
type RepairState struct {
	// LastFailure is the unix millisecond time of the last failed attempt.
	LastFailure int64 `json:"lastFailure,omitempty"`

	// NextRetryInterval is the current backoff step in milliseconds.
	NextRetryInterval int64 `json:"nextRetryInterval,omitempty"`

	// ConfirmedRepaired is set once the metadata reconciled.
	ConfirmedRepaired bool `json:"confirmedRepaired,omitempty"`
}

// NextRetry returns the earliest time another attempt may run.
func (s *RepairState) NextRetry() time.Time {
	if s == nil || s.LastFailure == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastFailure + s.NextRetryInterval)
}

// wireObject is the JSON shape of the modeled properties.
type wireObject struct {
	ID                   string          `json:"id,omitempty"`
	ObjectType           string          `json:"objectType,omitempty"`
	UUID                 string          `json:"_uuid,omitempty"`
	DisplayName          string          `json:"displayName,omitempty"`
	Content              string          `json:"content,omitempty"`
	Summary              string          `json:"summary,omitempty"`
	URL                  string          `json:"url,omitempty"`
	Published            string          `json:"published,omitempty"`
	Updated              string          `json:"updated,omitempty"`
	Author               *Object         `json:"author,omitempty"`
	InReplyTo            *Object         `json:"inReplyTo,omitempty"`
	Image                *MediaLink      `json:"image,omitempty"`
	Attachments          []*Object       `json:"attachments,omitempty"`
	UpstreamDuplicates   []string        `json:"upstreamDuplicates,omitempty"`
	DownstreamDuplicates []string        `json:"downstreamDuplicates,omitempty"`
	Links                map[string]Link `json:"links,omitempty"`
	Repair               *RepairState    `json:"_repair,omitempty"`
}

var modeledKeys = map[string]bool{
	"id": true, "objectType": true, PropUUID: true, "displayName": true,
	"content": true, "summary": true, "url": true, "published": true,
	"updated": true, "author": true, "inReplyTo": true, "image": true,
	"attachments": true, "upstreamDuplicates": true,
	"downstreamDuplicates": true, "links": true, PropRepair: true,
}

func isFeedName(name string) bool {
	for _, f := range feedNames {
		if f == name {
			return true
		}
	}
	return false
}

// MarshalJSON writes modeled properties, feeds and extra properties as one
// flat document.
func (o Object) MarshalJSON() ([]byte, error) {
	w := wireObject{
		ID:                   o.ID,
		ObjectType:           o.ObjectType,
		UUID:                 o.UUID,
		DisplayName:          o.DisplayName,
		Content:              o.Content,
		Summary:              o.Summary,
		URL:                  o.URL,
		Published:            o.Published,
		Updated:              o.Updated,
		Author:               o.Author,
		InReplyTo:            o.InReplyTo,
		Image:                o.Image,
		Attachments:          o.Attachments,
		UpstreamDuplicates:   o.UpstreamDuplicates,
		DownstreamDuplicates: o.DownstreamDuplicates,
		Links:                o.Links,
		Repair:               o.Repair,
	}
	base, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if len(o.Feeds) == 0 && len(o.Extra) == 0 {
		return base, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(base, &flat); err != nil {
		return nil, err
	}
	for name, c := range o.Feeds {
		if c == nil {
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		flat[name] = b
	}
	for k, v := range o.Extra {
		if _, taken := flat[k]; !taken {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat document, sorting feeds and unmodeled
// properties into Feeds and Extra.
func (o *Object) UnmarshalJSON(data []byte) error {
	var w wireObject
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	*o = Object{
		ID:                   w.ID,
		ObjectType:           w.ObjectType,
		UUID:                 w.UUID,
		DisplayName:          w.DisplayName,
		Content:              w.Content,
		Summary:              w.Summary,
		URL:                  w.URL,
		Published:            w.Published,
		Updated:              w.Updated,
		Author:               w.Author,
		InReplyTo:            w.InReplyTo,
		Image:                w.Image,
		Attachments:          w.Attachments,
		UpstreamDuplicates:   w.UpstreamDuplicates,
		DownstreamDuplicates: w.DownstreamDuplicates,
		Links:                w.Links,
		Repair:               w.Repair,
	}

	for k, v := range flat {
		switch {
		case modeledKeys[k]:
		case isFeedName(k):
			var c Collection
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("feed %s: %w", k, err)
			}
			o.SetFeed(k, &c)
		default:
			if o.Extra == nil {
				o.Extra = make(map[string]json.RawMessage)
			}
			o.Extra[k] = v
		}
	}
	return nil
}

// NewReference returns a bare {id, objectType} stub.
func NewReference(id, objectType string) *Object {
	return &Object{ID: id, ObjectType: objectType}
}

// Reference returns the bare stub pointing at o.
func (o *Object) Reference() *Object {
	return NewReference(o.ID, o.ObjectType)
}

// IsReference reports whether o carries nothing beyond id and objectType.
func (o *Object) IsReference() bool {
	if o == nil || o.ID == "" {
		return false
	}
	return o.UUID == "" && o.DisplayName == "" && o.Content == "" &&
		o.Summary == "" && o.URL == "" && o.Published == "" && o.Updated == "" &&
		o.Author == nil && o.InReplyTo == nil && o.Image == nil &&
		len(o.Attachments) == 0 && len(o.UpstreamDuplicates) == 0 &&
		len(o.DownstreamDuplicates) == 0 && len(o.Links) == 0 &&
		len(o.Feeds) == 0 && o.Repair == nil && len(o.Extra) == 0
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		panic(fmt.Sprintf("activity: clone marshal: %v", err))
	}
	var c Object
	if err := json.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintf("activity: clone unmarshal: %v", err))
	}
	return &c
}

// Feed returns the named feed stub or nil.
func (o *Object) Feed(name string) *Collection {
	return o.Feeds[name]
}

// SetFeed attaches a feed stub.
func (o *Object) SetFeed(name string, c *Collection) {
	if o.Feeds == nil {
		o.Feeds = make(map[string]*Collection)
	}
	o.Feeds[name] = c
}

// Link returns the href for rel or "".
func (o *Object) Link(rel string) string {
	return o.Links[rel].Href
}

// SetLink sets the href for rel.
func (o *Object) SetLink(rel, href string) {
	if o.Links == nil {
		o.Links = make(map[string]Link)
	}
	o.Links[rel] = Link{Href: href}
}

// Sanitize returns a copy without private properties, recursing into
// embedded objects.
func (o *Object) Sanitize() *Object {
	if o == nil {
		return nil
	}
	c := o.Clone()
	c.strip()
	return c
}

func (o *Object) strip() {
	if o == nil {
		return
	}
	o.UUID = ""
	o.Repair = nil
	for k := range o.Extra {
		if strings.HasPrefix(k, "_") {
			delete(o.Extra, k)
		}
	}
	o.Author.strip()
	o.InReplyTo.strip()
	for _, a := range o.Attachments {
		a.strip()
	}
}

// ToMap returns the flat document as a generic map.
func (o *Object) ToMap() (map[string]any, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode validates props and converts them into an Object. Private
// bookkeeping properties are dropped at every depth first: they are
// assigned by this server, never taken from input.
func Decode(props map[string]any) (*Object, error) {
	props = StripPrivate(props)
	if err := Validate(props); err != nil {
		return nil, err
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	var o Object
	if err := json.Unmarshal(data, &o); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, &ValidationError{Field: typeErr.Field, Reason: "has the wrong type"}
		}
		return nil, &ValidationError{Field: "object", Reason: err.Error()}
	}
	return &o, nil
}

// StripPrivate returns a deep copy of props without "_"-prefixed keys in
// any nested object.
func StripPrivate(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = stripValue(v)
	}
	return out
}

func stripValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return StripPrivate(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = stripValue(item)
		}
		return list
	}
	return v
}
