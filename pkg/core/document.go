// Document is the central entity of the domain.
package core

import (
	"context"
	"maps"
)

// Reserved keys of the serialized form.
const (
	IDKey      = "_id"
	RevKey     = "_rev"
	DeletedKey = "_deleted"
)

// Raw is the serialized form of a document as exchanged with a Store.
type Raw map[string]any

// ID returns the "_id" value, or "" when absent.
func (r Raw) ID() string {
	s, _ := r[IDKey].(string)
	return s
}

// Rev returns the "_rev" value, or "" when absent.
func (r Raw) Rev() string {
	s, _ := r[RevKey].(string)
	return s
}

// Clone returns a shallow copy.
func (r Raw) Clone() Raw {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// WithIdentity returns a copy carrying id and rev (empty values are dropped).
func (r Raw) WithIdentity(id, rev string) Raw {
	c := r.Clone()
	if c == nil {
		c = make(Raw)
	}
	delete(c, IDKey)
	delete(c, RevKey)
	if id != "" {
		c[IDKey] = id
	}
	if rev != "" {
		c[RevKey] = rev
	}
	return c
}

// Document is the unit of persistence handled by a Database.
type Document interface {
	// Identity returns the store identifier and revision. Both are empty
	// until the document is first written.
	Identity() (id, rev string)
	// SetIdentity is called by the Database after the store acknowledged a write.
	SetIdentity(id, rev string)

	IsDirty() bool
	MarkClean()

	// Errors exposes the per-field messages of the last validation run.
	Errors() *Errors
	// Validate runs the document's own checks and returns a fresh error set.
	Validate(ctx context.Context) Errors

	Encode() (Raw, error)
	// Decode replaces the in-memory state with raw, identity included.
	Decode(raw Raw) error
}

// SupportsBackReference is implemented by documents that can hold a link to
// the Database that loaded or saved them.
type SupportsBackReference interface {
	SetDatabase(db *Database)
	Database() *Database
}

// TypeNamer is implemented by documents that want a type discriminator
// written with their serialized form.
type TypeNamer interface {
	DocType() string
}

// Hooked is implemented by documents carrying their own lifecycle hooks.
type Hooked interface {
	Hooks() *Hooks
}

// IsNew reports whether doc has never been persisted.
func IsNew(doc Document) bool {
	id, _ := doc.Identity()
	return id == ""
}

// Intent selects the create or update flavour of the pipelines.
type Intent int

const (
	IntentCreate Intent = iota
	IntentUpdate
)

func (i Intent) String() string {
	if i == IntentCreate {
		return "create"
	}
	return "update"
}

func intentOf(doc Document) Intent {
	if IsNew(doc) {
		return IntentCreate
	}
	return IntentUpdate
}

// Base implements the bookkeeping part of Document. Embed it and provide
// Encode and Decode (and optionally Validate).
type Base struct {
	ID  string `json:"-" yaml:"-"`
	Rev string `json:"-" yaml:"-"`

	dirty bool
	errs  Errors
	db    *Database
}

func (b *Base) Identity() (string, string) { return b.ID, b.Rev }

func (b *Base) SetIdentity(id, rev string) {
	b.ID = id
	b.Rev = rev
}

// Touch flags the document as changed since the last write.
func (b *Base) Touch() { b.dirty = true }

func (b *Base) IsDirty() bool { return b.dirty }

func (b *Base) MarkClean() { b.dirty = false }

func (b *Base) Errors() *Errors { return &b.errs }

// Validate accepts everything. Embedders override it.
func (b *Base) Validate(ctx context.Context) Errors { return Errors{} }

func (b *Base) SetDatabase(db *Database) { b.db = db }

func (b *Base) Database() *Database { return b.db }

// EncodeIdentity writes "_id" and "_rev" into raw when set.
func (b *Base) EncodeIdentity(raw Raw) {
	if b.ID != "" {
		raw[IDKey] = b.ID
	}
	if b.Rev != "" {
		raw[RevKey] = b.Rev
	}
}

// DecodeIdentity reads "_id" and "_rev" from raw.
func (b *Base) DecodeIdentity(raw Raw) {
	b.ID = raw.ID()
	b.Rev = raw.Rev()
}

// Generic is a schemaless document backed by a map. Loads fall back to it
// when no type is registered for the stored form.
type Generic struct {
	Base
	Fields map[string]any
}

// NewGeneric creates an empty, new Generic document.
func NewGeneric() *Generic {
	return &Generic{Fields: make(map[string]any)}
}

// Get returns a field value.
func (g *Generic) Get(key string) any { return g.Fields[key] }

// Set assigns a field value and marks the document dirty.
func (g *Generic) Set(key string, value any) {
	if g.Fields == nil {
		g.Fields = make(map[string]any)
	}
	g.Fields[key] = value
	g.Touch()
}

// Delete removes a field and marks the document dirty.
func (g *Generic) Delete(key string) {
	delete(g.Fields, key)
	g.Touch()
}

func (g *Generic) Encode() (Raw, error) {
	raw := make(Raw, len(g.Fields)+2)
	for k, v := range g.Fields {
		raw[k] = v
	}
	g.EncodeIdentity(raw)
	return raw, nil
}

func (g *Generic) Decode(raw Raw) error {
	g.DecodeIdentity(raw)
	g.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == IDKey || k == RevKey {
			continue
		}
		g.Fields[k] = v
	}
	return nil
}

var _ Document = (*Generic)(nil)
var _ SupportsBackReference = (*Generic)(nil)
