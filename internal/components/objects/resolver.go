// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package objects resolves federated objects against the record store:
// idempotent ensure-or-create, reference compression before writes,
// expansion after reads, and tombstone-aware lookups.
package objects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/fedgraph-go/internal/components/activity"
	"github.com/MahdiBaghbani/fedgraph-go/internal/components/tombstone"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/instanceid"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/store"
)

// Secondary index fields written for every object record.
const (
	IndexUUID      = "_uuid"
	IndexInReplyTo = "inReplyTo"
	IndexAuthor    = "author"
)

// Reference-valued properties that are compressed before every write.
const (
	PropAuthor    = "author"
	PropInReplyTo = "inReplyTo"
)

var referenceProps = []string{PropAuthor, PropInReplyTo}

// Repairer is notified of every object read from the store. It must not
// block the caller.
type Repairer interface {
	Check(obj *activity.Object)
}

// Config configures a Resolver.
type Config struct {
	// PublicOrigin is this server's external origin; ids under it are local.
	PublicOrigin string

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Resolver is the single entry point for reading and writing objects.
type Resolver struct {
	store      store.RecordStore
	tombstones *tombstone.Ledger
	origin     string
	now        func() time.Time
	log        *slog.Logger
	repairer   Repairer
}

// NewResolver creates a resolver over st.
func NewResolver(st store.RecordStore, tombstones *tombstone.Ledger, cfg Config, log *slog.Logger) (*Resolver, error) {
	origin, err := instanceid.NormalizePublicOrigin(cfg.PublicOrigin)
	if err != nil {
		return nil, fmt.Errorf("objects: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if tombstones == nil {
		tombstones = tombstone.NewLedger(st, now)
	}
	return &Resolver{
		store:      st,
		tombstones: tombstones,
		origin:     origin,
		now:        now,
		log:        logutil.NoopIfNil(log),
	}, nil
}

// SetRepairer installs the read hook. Call before serving.
func (r *Resolver) SetRepairer(rp Repairer) {
	r.repairer = rp
}

// Origin returns the normalized public origin.
func (r *Resolver) Origin() string {
	return r.origin
}

// IsLocal reports whether id was minted by this server.
func (r *Resolver) IsLocal(id string) bool {
	return strings.HasPrefix(id, r.origin+"/")
}

// MintID builds the id of a new local object.
func (r *Resolver) MintID(objectType, uuid string) string {
	return r.origin + "/api/" + objectType + "/" + uuid
}

// ParseLocalID splits an id minted by MintID into its type and uuid.
func (r *Resolver) ParseLocalID(id string) (objectType, uuid string, ok bool) {
	rest, found := strings.CutPrefix(id, r.origin+"/api/")
	if !found {
		return "", "", false
	}
	objectType, uuid, found = strings.Cut(rest, "/")
	if !found || objectType == "" || uuid == "" || strings.Contains(uuid, "/") {
		return "", "", false
	}
	return objectType, uuid, true
}

// EnsureObject validates ad hoc input and returns the stored object for it,
// creating it when absent. Input with an id converges on one record for
// that id; input without an id always creates a new local object.
func (r *Resolver) EnsureObject(ctx context.Context, props map[string]any) (*activity.Object, error) {
	obj, err := activity.Decode(props)
	if err != nil {
		return nil, err
	}
	return r.Ensure(ctx, obj)
}

// Ensure is EnsureObject for an already typed object. Unknown type tags are
// stored as opaque records.
//
// Two concurrent calls for the same new id both run their compression
// writes before one of them wins the Create; the loser returns the winner's
// record and its own sub-writes stay in place.
func (r *Resolver) Ensure(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if obj == nil || obj.ObjectType == "" {
		return nil, &activity.ValidationError{Field: "objectType", Reason: "is required"}
	}
	if obj.ID == "" {
		return r.create(ctx, obj)
	}

	created, err := r.create(ctx, obj)
	if errors.Is(err, ErrAlreadyExists) {
		return r.Get(ctx, obj.ObjectType, obj.ID)
	}
	return created, err
}

// CreateObject creates an object of a registered type. An existing id
// yields ErrAlreadyExists.
func (r *Resolver) CreateObject(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if obj == nil {
		return nil, &activity.ValidationError{Field: "objectType", Reason: "is required"}
	}
	if activity.ToClass(obj.ObjectType) == nil {
		return nil, &UnknownTypeError{Type: obj.ObjectType}
	}
	return r.create(ctx, obj)
}

// GetObject reads an object of a registered type by id.
func (r *Resolver) GetObject(ctx context.Context, objectType, id string) (*activity.Object, error) {
	if activity.ToClass(objectType) == nil {
		return nil, &UnknownTypeError{Type: objectType}
	}
	return r.Get(ctx, objectType, id)
}

// Get reads any stored object by type and id, expanded.
func (r *Resolver) Get(ctx context.Context, objectType, id string) (*activity.Object, error) {
	obj, err := r.load(ctx, objectType, id)
	if err != nil {
		return nil, err
	}
	return r.afterRead(ctx, obj), nil
}

// GetByUUID reads an object of a registered type by its local uuid. A
// deleted object yields ErrGone, one that never existed ErrNotFound.
func (r *Resolver) GetByUUID(ctx context.Context, objectType, uuid string) (*activity.Object, error) {
	if activity.ToClass(objectType) == nil {
		return nil, &UnknownTypeError{Type: objectType}
	}
	obj, err := r.findByUUID(ctx, objectType, uuid)
	if err != nil {
		return nil, err
	}
	return r.afterRead(ctx, obj), nil
}

// Update saves a modified object and refreshes its updated time.
func (r *Resolver) Update(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if obj == nil {
		return nil, ErrNotFound
	}
	obj = obj.Clone()
	obj.Updated = r.timestamp()
	return r.save(ctx, obj)
}

// Replace saves obj as is, without touching its timestamps.
func (r *Resolver) Replace(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if obj == nil {
		return nil, ErrNotFound
	}
	return r.save(ctx, obj.Clone())
}

// Delete removes the object and tombstones it.
func (r *Resolver) Delete(ctx context.Context, objectType, id string) (*activity.Object, error) {
	obj, err := r.load(ctx, objectType, id)
	if err != nil {
		return nil, err
	}
	return r.remove(ctx, obj)
}

// DeleteByUUID removes an object of a registered type addressed by uuid.
func (r *Resolver) DeleteByUUID(ctx context.Context, objectType, uuid string) (*activity.Object, error) {
	if activity.ToClass(objectType) == nil {
		return nil, &UnknownTypeError{Type: objectType}
	}
	obj, err := r.findByUUID(ctx, objectType, uuid)
	if err != nil {
		return nil, err
	}
	return r.remove(ctx, obj)
}

// Compress replaces the named reference property with a bare
// {id, objectType} stub, ensuring the referenced object is stored. It is a
// no-op when the property is absent.
func (r *Resolver) Compress(ctx context.Context, obj *activity.Object, prop string) error {
	slot, err := refSlot(obj, prop)
	if err != nil {
		return err
	}
	sub := *slot
	if sub == nil {
		return nil
	}

	if sub.IsReference() {
		if _, err := r.store.Get(ctx, sub.ObjectType, sub.ID); err == nil {
			*slot = sub.Reference()
			return nil
		}
	}

	stored, err := r.Ensure(ctx, sub)
	if err != nil {
		var verr *activity.ValidationError
		if errors.As(err, &verr) {
			return &activity.ValidationError{Field: prop + "." + verr.Field, Reason: verr.Reason}
		}
		return fmt.Errorf("failed to compress %s: %w", prop, err)
	}
	*slot = stored.Reference()
	return nil
}

// Expand replaces a bare reference in the named property with the stored
// object. References to objects this server does not hold are left as is.
// Storage is never modified.
func (r *Resolver) Expand(ctx context.Context, obj *activity.Object, prop string) error {
	slot, err := refSlot(obj, prop)
	if err != nil {
		return err
	}
	ref := *slot
	if !ref.IsReference() {
		return nil
	}
	full, err := r.load(ctx, ref.ObjectType, ref.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to expand %s: %w", prop, err)
	}
	*slot = full
	return nil
}

func refSlot(obj *activity.Object, prop string) (**activity.Object, error) {
	switch prop {
	case PropAuthor:
		return &obj.Author, nil
	case PropInReplyTo:
		return &obj.InReplyTo, nil
	}
	return nil, fmt.Errorf("objects: %q is not a reference property", prop)
}

func (r *Resolver) create(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	obj = obj.Clone()
	// The uuid and repair state are local bookkeeping, never input. A local
	// id already names its uuid.
	obj.UUID = newUUID()
	obj.Repair = nil
	if obj.ID == "" {
		obj.ID = r.MintID(obj.ObjectType, obj.UUID)
	} else if objectType, uuid, ok := r.ParseLocalID(obj.ID); ok && objectType == obj.ObjectType {
		obj.UUID = uuid
	}
	if obj.Published == "" {
		obj.Published = r.timestamp()
	}
	if obj.Updated == "" {
		obj.Updated = obj.Published
	}
	if r.IsLocal(obj.ID) {
		decorateLocal(obj)
	}

	rec, err := r.record(ctx, obj)
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, obj.ID)
		}
		return nil, fmt.Errorf("failed to create %s: %w", obj.ID, err)
	}

	r.log.Debug("object created", "object_type", obj.ObjectType, "id", obj.ID)
	return r.expandAll(ctx, obj), nil
}

func (r *Resolver) save(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if obj.ID == "" || obj.ObjectType == "" {
		return nil, ErrNotFound
	}
	rec, err := r.record(ctx, obj)
	if err != nil {
		return nil, err
	}
	if err := r.store.Update(ctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to save %s: %w", obj.ID, err)
	}
	return r.expandAll(ctx, obj), nil
}

// remove writes the tombstone before the delete. Marking is idempotent, so
// a failed delete can simply be retried.
func (r *Resolver) remove(ctx context.Context, obj *activity.Object) (*activity.Object, error) {
	if err := r.tombstones.Mark(ctx, obj); err != nil {
		return nil, fmt.Errorf("failed to tombstone %s: %w", obj.ID, err)
	}
	if err := r.store.Delete(ctx, obj.ObjectType, obj.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete %s: %w", obj.ID, err)
	}
	r.log.Debug("object deleted", "object_type", obj.ObjectType, "id", obj.ID)
	return obj, nil
}

// record compresses obj in place and builds its store record.
func (r *Resolver) record(ctx context.Context, obj *activity.Object) (*store.Record, error) {
	for _, prop := range referenceProps {
		if err := r.Compress(ctx, obj, prop); err != nil {
			return nil, err
		}
	}
	indexes := map[string]string{IndexUUID: obj.UUID}
	if obj.Author != nil {
		indexes[IndexAuthor] = obj.Author.ID
	}
	if obj.InReplyTo != nil {
		indexes[IndexInReplyTo] = obj.InReplyTo.ID
	}
	return store.NewRecord(obj.ObjectType, obj.ID, obj, indexes)
}

func (r *Resolver) load(ctx context.Context, objectType, id string) (*activity.Object, error) {
	rec, err := r.store.Get(ctx, objectType, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var obj activity.Object
	if err := rec.Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (r *Resolver) findByUUID(ctx context.Context, objectType, uuid string) (*activity.Object, error) {
	recs, err := r.store.Search(ctx, objectType, map[string]string{IndexUUID: uuid})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		_, err := r.tombstones.Lookup(ctx, objectType, uuid)
		switch {
		case err == nil:
			return nil, ErrGone
		case errors.Is(err, tombstone.ErrNotFound), errors.Is(err, tombstone.ErrMissingKey):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}
	if len(recs) > 1 {
		return nil, fmt.Errorf("%w: %d %s records for %s", ErrDuplicateUUID, len(recs), objectType, uuid)
	}
	var obj activity.Object
	if err := recs[0].Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (r *Resolver) afterRead(ctx context.Context, obj *activity.Object) *activity.Object {
	if r.repairer != nil {
		r.repairer.Check(obj.Clone())
	}
	return r.expandAll(ctx, obj)
}

// expandAll hydrates references and feed counts on a copy of obj.
func (r *Resolver) expandAll(ctx context.Context, obj *activity.Object) *activity.Object {
	out := obj.Clone()
	for _, prop := range referenceProps {
		if err := r.Expand(ctx, out, prop); err != nil {
			r.log.Warn("expand failed", "id", obj.ID, "property", prop, "error", err)
		}
	}
	if replies := out.Feed(activity.FeedReplies); replies != nil {
		recs, err := r.store.Search(ctx, "", map[string]string{IndexInReplyTo: out.ID})
		if err != nil {
			r.log.Warn("reply count failed", "id", obj.ID, "error", err)
		} else {
			n := len(recs)
			replies.TotalItems = &n
		}
	}
	return out
}

func (r *Resolver) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
