// Package memory provides an in-process core.Store. It keeps every document
// in a map and is meant for tests, prototypes and the CLI's scratch mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/andymorris/couch-potato/pkg/core"
)

// Config holds the configuration for the memory store.
type Config struct {
	Logger *slog.Logger
	// NewID generates ids for documents written without one. Defaults to UUIDs.
	NewID func() string
}

// Store implements core.Store with revision checks equivalent to CouchDB's.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]core.Raw
	config   Config
	watchers map[int]*watcher
	nextSub  int
}

type watcher struct {
	pattern string
	ch      chan core.Event
}

// New creates an empty store.
func New(config Config) *Store {
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Store{
		docs:     make(map[string]core.Raw),
		config:   config,
		watchers: make(map[int]*watcher),
	}
}

func (s *Store) Get(ctx context.Context, id string) (core.Raw, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.docs[id]
	if !ok {
		return nil, false, nil
	}
	return raw.Clone(), true, nil
}

func (s *Store) BulkLoad(ctx context.Context, ids []string) ([]core.LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.LoadResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.LoadResult{ID: id, Doc: s.docs[id].Clone()})
	}
	return out, nil
}

func (s *Store) WriteNew(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.WriteResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.writeLocked(doc.WithIdentity(doc.ID(), ""))
	if err != nil {
		return core.WriteResult{}, err
	}
	s.debug("document created", "id", res.ID, "rev", res.Rev)
	return res, nil
}

func (s *Store) WriteExisting(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.WriteResult{}, err
	}
	if doc.ID() == "" || doc.Rev() == "" {
		return core.WriteResult{}, fmt.Errorf("update requires _id and _rev: %w", core.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.writeLocked(doc)
	if err != nil {
		return core.WriteResult{}, err
	}
	s.debug("document updated", "id", res.ID, "rev", res.Rev)
	return res, nil
}

// writeLocked applies one write with CouchDB revision rules. The caller
// holds s.mu.
func (s *Store) writeLocked(doc core.Raw) (core.WriteResult, error) {
	id := doc.ID()
	if id == "" {
		id = s.config.NewID()
	}
	cur, exists := s.docs[id]
	if cur.Rev() != doc.Rev() {
		return core.WriteResult{}, fmt.Errorf("%s: %w", id, core.ErrConflict)
	}

	if deleted, _ := doc[core.DeletedKey].(bool); deleted {
		if !exists {
			return core.WriteResult{}, fmt.Errorf("%s: %w", id, core.ErrNotFound)
		}
		delete(s.docs, id)
		s.notify(core.EventDelete, id)
		return core.WriteResult{ID: id, Rev: core.NextRevision(cur.Rev())}, nil
	}

	rev := core.NextRevision(cur.Rev())
	s.docs[id] = doc.WithIdentity(id, rev)
	if exists {
		s.notify(core.EventModify, id)
	} else {
		s.notify(core.EventCreate, id)
	}
	return core.WriteResult{ID: id, Rev: rev}, nil
}

func (s *Store) BulkWrite(ctx context.Context, docs []core.Raw) ([]core.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BatchResult, 0, len(docs))
	for _, doc := range docs {
		res, err := s.writeLocked(doc)
		if errors.Is(err, core.ErrNotFound) {
			out = append(out, core.BatchResult{ID: doc.ID(), Error: "not_found", Reason: "missing"})
			continue
		}
		if err != nil {
			out = append(out, core.BatchResult{ID: doc.ID(), Error: "conflict", Reason: "Document update conflict."})
			continue
		}
		out = append(out, core.BatchResult{ID: res.ID, OK: true, Rev: res.Rev})
	}
	s.debug("bulk write", "docs", len(docs))
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, core.ErrNotFound)
	}
	if cur.Rev() != rev {
		return fmt.Errorf("%s: %w", id, core.ErrConflict)
	}
	delete(s.docs, id)
	s.notify(core.EventDelete, id)
	s.debug("document deleted", "id", id)
	return nil
}

func (s *Store) Query(ctx context.Context, spec core.ViewSpec) (core.ViewResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ViewResult{}, err
	}
	s.mu.RLock()
	docs := make([]core.Raw, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.RUnlock()
	return core.EvaluateView(spec, docs)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// IDs returns the stored ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watch streams changes whose id matches pattern until ctx is done.
// Slow consumers miss events rather than block writers.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, core.ErrInvalidArgument)
	}
	s.mu.Lock()
	sub := s.nextSub
	s.nextSub++
	w := &watcher{pattern: pattern, ch: make(chan core.Event, 64)}
	s.watchers[sub] = w
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, sub)
		close(w.ch)
		s.mu.Unlock()
	}()
	return w.ch, nil
}

// notify fans an event out to the watchers. The caller holds s.mu.
func (s *Store) notify(t core.EventType, id string) {
	if len(s.watchers) == 0 {
		return
	}
	e := core.Event{Type: t, ID: id, Timestamp: time.Now().Unix()}
	for _, w := range s.watchers {
		if ok, _ := doublestar.Match(w.pattern, id); !ok {
			continue
		}
		select {
		case w.ch <- e:
		default:
			s.debug("watcher lagging, event dropped", "id", id)
		}
	}
}

func (s *Store) debug(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

var _ core.Store = (*Store)(nil)
var _ core.Watchable = (*Store)(nil)
