package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultTypeKey is the field holding the type discriminator.
const DefaultTypeKey = "type"

// Factory builds an empty document of a registered type.
type Factory func() Document

// Config holds the collaborators of a Database.
type Config struct {
	Logger *slog.Logger
	// TypeKey overrides DefaultTypeKey.
	TypeKey string
	// Hooks run for every document, before the document's own hooks.
	Hooks *Hooks
	// NewID generates client-side ids for new documents in bulk writes.
	// Defaults to random UUIDs.
	NewID func() string
}

// Database coordinates documents with a Store.
type Database struct {
	store   Store
	logger  *slog.Logger
	typeKey string
	hooks   *Hooks
	newID   func() string

	mu    sync.RWMutex
	types map[string]Factory
}

// NewDatabase creates a Database on top of store.
func NewDatabase(store Store, cfg Config) *Database {
	db := &Database{
		store:   store,
		logger:  cfg.Logger,
		typeKey: cfg.TypeKey,
		hooks:   cfg.Hooks,
		newID:   cfg.NewID,
		types:   make(map[string]Factory),
	}
	if db.typeKey == "" {
		db.typeKey = DefaultTypeKey
	}
	if db.newID == nil {
		db.newID = func() string { return uuid.New().String() }
	}
	return db
}

// Store returns the underlying store.
func (db *Database) Store() Store { return db.store }

// Hooks returns the database-wide hooks, creating them on first use.
func (db *Database) Hooks() *Hooks {
	if db.hooks == nil {
		db.hooks = NewHooks()
	}
	return db.hooks
}

// Register maps a type discriminator to a factory used when loading.
func (db *Database) Register(typeName string, factory Factory) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.types[typeName] = factory
}

// RegisteredTypes returns the registered discriminators, sorted.
func (db *Database) RegisteredTypes() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.types))
	for name := range db.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch observes changes in the store if supported.
func (db *Database) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	w, ok := db.store.(Watchable)
	if !ok {
		return nil, errors.New("store does not support watching")
	}
	return w.Watch(ctx, pattern)
}

func (db *Database) debug(msg string, args ...any) {
	if db.logger != nil {
		db.logger.Debug(msg, args...)
	}
}

func (db *Database) stages(doc Document) stageRunner {
	r := stageRunner{db.hooks}
	if h, ok := doc.(Hooked); ok {
		r = append(r, h.Hooks())
	}
	return r
}

// bind attaches the back-reference when doc supports one.
func (db *Database) bind(doc Document) {
	if br, ok := doc.(SupportsBackReference); ok {
		br.SetDatabase(db)
	}
}

func (db *Database) encode(doc Document) (Raw, error) {
	raw, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if raw == nil {
		raw = make(Raw)
	}
	if tn, ok := doc.(TypeNamer); ok {
		raw[db.typeKey] = tn.DocType()
	}
	return raw, nil
}

func (db *Database) decode(raw Raw) (Document, error) {
	var doc Document
	if name, ok := raw[db.typeKey].(string); ok {
		db.mu.RLock()
		factory, found := db.types[name]
		db.mu.RUnlock()
		if found {
			doc = factory()
		}
	}
	if doc == nil {
		doc = NewGeneric()
	}
	if err := doc.Decode(raw); err != nil {
		return nil, err
	}
	doc.MarkClean()
	return doc, nil
}
