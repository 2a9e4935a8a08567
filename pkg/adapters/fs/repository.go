// Package fs stores documents as files under a root directory, one file per
// document. It keeps CouchDB revision semantics: every write must carry the
// current revision and gets a new one back.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/andymorris/couch-potato/pkg/core"
)

// DefaultSystemDir holds the lock file and the revision index.
const DefaultSystemDir = ".couchpotato"

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	AutoInit  bool
	MustExist bool
	ReadOnly  bool
	// Strict keeps numbers as json.Number to avoid precision loss.
	Strict bool
	// Format of newly written documents: "json" (default) or "yaml".
	// Existing files keep their format.
	Format       string
	SystemDir    string
	Logger       *slog.Logger
	ErrorHandler func(error)
	// NewID generates ids for documents written without one. Defaults to UUIDs.
	NewID func() string
}

// Repository implements core.Store on the filesystem.
type Repository struct {
	Path        string
	config      Config
	serializers map[string]Serializer
	revs        *revIndex
	revsOnce    sync.Once

	writeMu sync.Mutex

	mu            sync.RWMutex
	readOnly      bool
	watcherActive bool
	lastReconcile *time.Time
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Repository{
		Path:        config.Path,
		config:      config,
		serializers: DefaultSerializers(config.Strict),
		revs:        newRevIndex(config.Path, config.SystemDir),
		readOnly:    config.ReadOnly,
	}
}

// Initialize checks or creates the root directory.
func (r *Repository) Initialize(ctx context.Context) error {
	if _, err := extensionFor(r.config.Format); err != nil {
		return err
	}

	info, err := os.Stat(r.Path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	case os.IsNotExist(err):
		if r.config.MustExist || !r.config.AutoInit {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if r.readOnly {
			return fmt.Errorf("cannot create %s: %w", r.Path, core.ErrReadOnly)
		}
		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
		r.config.Logger.Debug("store directory created", "path", r.Path)
	default:
		return fmt.Errorf("failed to stat store path: %w", err)
	}

	r.loadRevs()
	return nil
}

func (r *Repository) loadRevs() {
	r.revsOnce.Do(func() {
		if err := r.revs.load(); err != nil {
			r.config.Logger.Warn("revision index unreadable, starting fresh", "error", err)
		}
	})
}

// relPathFor validates id and returns the slash path of its file without
// extension.
func (r *Repository) relPathFor(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty document id: %w", core.ErrInvalidArgument)
	}
	if strings.Contains(id, "\\") || strings.HasPrefix(id, "/") || path.Clean(id) != id ||
		id == ".." || strings.HasPrefix(id, "../") {
		return "", fmt.Errorf("document id %q is not a clean relative path: %w", id, core.ErrInvalidArgument)
	}
	if first, _, _ := strings.Cut(id, "/"); first == r.config.SystemDir {
		return "", fmt.Errorf("document id %q is reserved: %w", id, core.ErrInvalidArgument)
	}
	return id, nil
}

// extensions lists the lookup order: the configured format first.
func (r *Repository) extensions() []string {
	primary, _ := extensionFor(r.config.Format)
	exts := []string{primary}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if ext != primary {
			exts = append(exts, ext)
		}
	}
	return exts
}

// locate finds the file holding id. When none exists, found is false and
// rel is where a new file would go.
func (r *Repository) locate(id string) (rel, ext string, found bool, err error) {
	base, err := r.relPathFor(id)
	if err != nil {
		return "", "", false, err
	}
	exts := r.extensions()
	for _, e := range exts {
		info, err := os.Stat(r.fullPath(base + e))
		if err == nil && !info.IsDir() {
			return base + e, e, true, nil
		}
	}
	return base + exts[0], exts[0], false, nil
}

func (r *Repository) fullPath(rel string) string {
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

func (r *Repository) readFile(rel, ext, id string) (core.Raw, error) {
	f, err := os.Open(r.fullPath(rel))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := r.serializers[ext].Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", id, err)
	}
	raw[core.IDKey] = id
	return raw, nil
}

// Get retrieves a document from the filesystem.
func (r *Repository) Get(ctx context.Context, id string) (core.Raw, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	rel, ext, found, err := r.locate(id)
	if err != nil || !found {
		return nil, false, err
	}
	raw, err := r.readFile(rel, ext, id)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// BulkLoad reads every id; missing ones get a nil Doc.
func (r *Repository) BulkLoad(ctx context.Context, ids []string) ([]core.LoadResult, error) {
	out := make([]core.LoadResult, 0, len(ids))
	for _, id := range ids {
		raw, _, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, core.LoadResult{ID: id, Doc: raw})
	}
	return out, nil
}

func (r *Repository) WriteNew(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	return r.writeOne(ctx, doc.WithIdentity(doc.ID(), ""))
}

func (r *Repository) WriteExisting(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	if doc.ID() == "" || doc.Rev() == "" {
		return core.WriteResult{}, fmt.Errorf("update requires _id and _rev: %w", core.ErrInvalidArgument)
	}
	return r.writeOne(ctx, doc)
}

func (r *Repository) writeOne(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	if r.isReadOnly() {
		return core.WriteResult{}, core.ErrReadOnly
	}
	unlock, err := r.lockWrites(ctx)
	if err != nil {
		return core.WriteResult{}, err
	}
	defer unlock()

	res, err := r.writeLocked(doc)
	if err != nil {
		return core.WriteResult{}, err
	}
	r.saveRevs()
	return res, nil
}

// writeLocked applies one write with CouchDB revision rules. The caller
// holds the write lock.
func (r *Repository) writeLocked(doc core.Raw) (core.WriteResult, error) {
	id := doc.ID()
	if id == "" {
		id = r.config.NewID()
	}
	rel, ext, found, err := r.locate(id)
	if err != nil {
		return core.WriteResult{}, err
	}

	var curRev string
	if found {
		cur, err := r.readFile(rel, ext, id)
		if err != nil {
			return core.WriteResult{}, err
		}
		curRev = cur.Rev()
	}
	if curRev != doc.Rev() {
		return core.WriteResult{}, fmt.Errorf("%s: %w", id, core.ErrConflict)
	}

	if deleted, _ := doc[core.DeletedKey].(bool); deleted {
		if !found {
			return core.WriteResult{}, fmt.Errorf("%s: %w", id, core.ErrNotFound)
		}
		if err := r.removeLocked(rel); err != nil {
			return core.WriteResult{}, err
		}
		return core.WriteResult{ID: id, Rev: core.NextRevision(curRev)}, nil
	}

	rev := core.NextRevision(curRev)
	data, err := r.serializers[ext].Serialize(doc.WithIdentity(id, rev))
	if err != nil {
		return core.WriteResult{}, fmt.Errorf("failed to serialize document: %w", err)
	}

	full := r.fullPath(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return core.WriteResult{}, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := writeFileAtomic(full, data, 0644); err != nil {
		return core.WriteResult{}, err
	}

	r.loadRevs()
	entry := revEntry{ID: id, Rev: rev}
	if info, err := os.Stat(full); err == nil {
		entry.ModTime = info.ModTime()
	}
	r.revs.record(rel, entry)

	r.config.Logger.Debug("document written", "id", id, "rev", rev, "path", rel)
	return core.WriteResult{ID: id, Rev: rev}, nil
}

func (r *Repository) removeLocked(rel string) error {
	if err := os.Remove(r.fullPath(rel)); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	r.loadRevs()
	r.revs.forget(rel)
	return nil
}

func (r *Repository) saveRevs() {
	if err := r.revs.flush(); err != nil {
		r.config.Logger.Warn("failed to save revision index", "error", err)
	}
}

// BulkWrite applies every document under one lock and reports per-document
// outcomes in CouchDB's _bulk_docs shape.
func (r *Repository) BulkWrite(ctx context.Context, docs []core.Raw) ([]core.BatchResult, error) {
	if r.isReadOnly() {
		return nil, core.ErrReadOnly
	}
	unlock, err := r.lockWrites(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	defer r.saveRevs()

	out := make([]core.BatchResult, 0, len(docs))
	for _, doc := range docs {
		res, err := r.writeLocked(doc)
		switch {
		case err == nil:
			out = append(out, core.BatchResult{ID: res.ID, OK: true, Rev: res.Rev})
		case errors.Is(err, core.ErrConflict):
			out = append(out, core.BatchResult{ID: doc.ID(), Error: "conflict", Reason: "Document update conflict."})
		case errors.Is(err, core.ErrNotFound):
			out = append(out, core.BatchResult{ID: doc.ID(), Error: "not_found", Reason: "missing"})
		case errors.Is(err, core.ErrInvalidArgument):
			out = append(out, core.BatchResult{ID: doc.ID(), Error: "bad_request", Reason: err.Error()})
		default:
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a document at revision rev.
func (r *Repository) Delete(ctx context.Context, id, rev string) error {
	if r.isReadOnly() {
		return core.ErrReadOnly
	}
	unlock, err := r.lockWrites(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	rel, ext, found, err := r.locate(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", id, core.ErrNotFound)
	}
	cur, err := r.readFile(rel, ext, id)
	if err != nil {
		return err
	}
	if cur.Rev() != rev {
		return fmt.Errorf("%s: %w", id, core.ErrConflict)
	}
	if err := r.removeLocked(rel); err != nil {
		return err
	}
	r.saveRevs()
	r.config.Logger.Debug("document deleted", "id", id)
	return nil
}

// Query evaluates spec over every stored document.
func (r *Repository) Query(ctx context.Context, spec core.ViewSpec) (core.ViewResult, error) {
	var docs []core.Raw
	err := r.walk(ctx, func(rel, id, ext string, info iofs.FileInfo) error {
		if spec.Name == core.AllDocs && spec.Pattern != "" {
			if ok, _ := doublestar.Match(spec.Pattern, id); !ok {
				return nil
			}
		}
		raw, err := r.readFile(rel, ext, id)
		if err != nil {
			r.config.Logger.Debug("skipping unreadable document", "path", rel, "error", err)
			return nil
		}
		docs = append(docs, raw)
		return nil
	})
	if err != nil {
		return core.ViewResult{}, err
	}
	return core.EvaluateView(spec, docs)
}

// walk visits every document file, skipping the system directory, hidden
// directories and unknown extensions.
func (r *Repository) walk(ctx context.Context, fn func(rel, id, ext string, info iofs.FileInfo) error) error {
	return filepath.WalkDir(r.Path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != r.Path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(d.Name())
		if _, ok := r.serializers[ext]; !ok {
			return nil
		}
		rel, err := filepath.Rel(r.Path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return nil
		}
		return fn(rel, strings.TrimSuffix(rel, ext), ext, info)
	})
}

// Reconcile compares the disk with the revision index and reports the
// changes made outside this process since the last reconcile. The index is
// updated so the same change is reported once.
func (r *Repository) Reconcile(ctx context.Context) ([]core.Event, error) {
	r.loadRevs()
	now := time.Now().Unix()
	seen := make(map[string]bool)
	var events []core.Event

	err := r.walk(ctx, func(rel, id, ext string, info iofs.FileInfo) error {
		seen[rel] = true
		if r.revs.unchanged(rel, info.ModTime()) {
			return nil
		}
		raw, err := r.readFile(rel, ext, id)
		if err != nil {
			r.config.Logger.Debug("skipping unreadable document", "path", rel, "error", err)
			return nil
		}
		prev, known := r.revs.lookup(rel)
		switch {
		case !known:
			events = append(events, core.Event{Type: core.EventCreate, ID: id, Timestamp: now})
		case prev.Rev != raw.Rev():
			events = append(events, core.Event{Type: core.EventModify, ID: id, Timestamp: now})
		}
		r.revs.record(rel, revEntry{ID: id, Rev: raw.Rev(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range r.revs.retain(seen) {
		events = append(events, core.Event{Type: core.EventDelete, ID: entry.ID, Timestamp: now})
	}
	slices.SortFunc(events, func(a, b core.Event) int { return strings.Compare(a.ID, b.ID) })

	if !r.isReadOnly() {
		r.saveRevs()
	}
	r.recordReconcile()
	return events, nil
}

// Watch streams changes to files whose id matches pattern until ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, core.ErrInvalidArgument)
	}
	events := make(chan core.Event)
	w := newWatchWorker(r, pattern, events)
	w.ownsEvents = true
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repository) isReadOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readOnly
}

// SetReadOnly toggles write protection at runtime.
func (r *Repository) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

var _ core.Store = (*Repository)(nil)
var _ core.Initializer = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
