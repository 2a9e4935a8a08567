package fs

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	revIndexFile    = "revs.json"
	revIndexVersion = 2
)

// revEntry is the last revision seen for one document file.
type revEntry struct {
	ID      string    `json:"id"`
	Rev     string    `json:"rev"`
	ModTime time.Time `json:"mtime"`
}

type revIndexFileFormat struct {
	Version int                 `json:"version"`
	Files   map[string]revEntry `json:"files"`
}

// revIndex maps relative file paths to the revision last written or
// observed. Reconcile diffs it against the disk to find offline edits.
type revIndex struct {
	path string

	mu    sync.RWMutex
	files map[string]revEntry
	dirty bool
}

func newRevIndex(root, systemDir string) *revIndex {
	return &revIndex{
		path:  filepath.Join(root, systemDir, revIndexFile),
		files: make(map[string]revEntry),
	}
}

// load replaces the in-memory index with the persisted one. A missing,
// corrupt or outdated file leaves the index empty, so the next reconcile
// reports every document as created.
func (x *revIndex) load() error {
	data, err := os.ReadFile(x.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read revision index: %w", err)
	}

	var stored revIndexFileFormat
	if err := json.Unmarshal(data, &stored); err != nil || stored.Version != revIndexVersion {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.files = make(map[string]revEntry, len(stored.Files))
	maps.Copy(x.files, stored.Files)
	x.dirty = false
	return nil
}

// flush writes the index when it changed since the last load or flush.
func (x *revIndex) flush() error {
	x.mu.RLock()
	if !x.dirty {
		x.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(revIndexFileFormat{Version: revIndexVersion, Files: x.files}, "", "  ")
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode revision index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(x.path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(x.path, data, 0644); err != nil {
		return err
	}

	x.mu.Lock()
	x.dirty = false
	x.mu.Unlock()
	return nil
}

// unchanged reports whether rel still has the modification time recorded
// for it.
func (x *revIndex) unchanged(rel string, mtime time.Time) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.files[rel]
	return ok && e.ModTime.Equal(mtime)
}

func (x *revIndex) lookup(rel string) (revEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.files[rel]
	return e, ok
}

func (x *revIndex) record(rel string, e revEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if cur, ok := x.files[rel]; ok && cur == e {
		return
	}
	x.files[rel] = e
	x.dirty = true
}

func (x *revIndex) forget(rel string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.files[rel]; !ok {
		return
	}
	delete(x.files, rel)
	x.dirty = true
}

// retain drops every file not in present and returns the dropped entries.
func (x *revIndex) retain(present map[string]bool) []revEntry {
	x.mu.Lock()
	defer x.mu.Unlock()

	var gone []revEntry
	for rel, e := range x.files {
		if present[rel] {
			continue
		}
		gone = append(gone, e)
		delete(x.files, rel)
		x.dirty = true
	}
	return gone
}

func (x *revIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.files)
}
