package platform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andymorris/couch-potato/internal/platform"
	"github.com/andymorris/couch-potato/pkg/core"
)

func setupDatabase(t *testing.T, opts ...platform.Option) (*core.Database, string) {
	t.Helper()
	tmpDir := t.TempDir()

	baseOpts := []platform.Option{platform.WithAutoInit(true)}
	db, err := platform.New(context.Background(), tmpDir, append(baseOpts, opts...)...)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return db, tmpDir
}

func TestDatabase_SaveWritesFile(t *testing.T) {
	db, tmpDir := setupDatabase(t)
	ctx := context.Background()

	doc := core.NewGeneric()
	doc.Set("_id", "notes/first")
	doc.Set("title", "Integration Test")
	if err := db.SaveOrFail(ctx, doc); err != nil {
		t.Fatalf("SaveOrFail failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "notes", "first.json")); err != nil {
		t.Errorf("document file not created: %v", err)
	}

	loaded, err := db.LoadOrFail(ctx, "notes/first")
	if err != nil {
		t.Fatalf("LoadOrFail failed: %v", err)
	}
	g := loaded.(*core.Generic)
	if g.Get("title") != "Integration Test" {
		t.Errorf("title mismatch, got %v", g.Get("title"))
	}
	if _, rev := g.Identity(); core.RevisionGeneration(rev) != 1 {
		t.Errorf("expected first revision, got %q", rev)
	}
}

func TestDatabase_RetryAcrossStaleCopies(t *testing.T) {
	db, _ := setupDatabase(t)
	ctx := context.Background()

	doc := core.NewGeneric()
	doc.Set("count", 1)
	if err := db.SaveOrFail(ctx, doc); err != nil {
		t.Fatalf("SaveOrFail failed: %v", err)
	}
	id, _ := doc.Identity()

	stale, err := db.LoadOrFail(ctx, id)
	if err != nil {
		t.Fatalf("LoadOrFail failed: %v", err)
	}

	doc.Set("count", 2)
	if err := db.SaveOrFail(ctx, doc); err != nil {
		t.Fatalf("SaveOrFail failed: %v", err)
	}

	stale.(*core.Generic).Set("owner", "bob")
	_, err = db.Save(ctx, stale)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict on stale copy, got %v", err)
	}

	ok, err := db.SaveWithRetry(ctx, stale, func(d core.Document) error {
		d.(*core.Generic).Set("owner", "bob")
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("SaveWithRetry failed: ok=%v err=%v", ok, err)
	}
	g := stale.(*core.Generic)
	if g.Get("owner") != "bob" {
		t.Errorf("mutation lost: %v", g.Fields)
	}
	if _, rev := g.Identity(); core.RevisionGeneration(rev) != 3 {
		t.Errorf("expected third revision, got %q", rev)
	}
}

func TestDatabase_YAMLFormatAndTypeKey(t *testing.T) {
	db, tmpDir := setupDatabase(t, platform.WithFormat("yaml"), platform.WithTypeKey("kind"))
	ctx := context.Background()

	doc := core.NewGeneric()
	doc.Set("_id", "spud")
	doc.Set("kind", "potato")
	if err := db.SaveOrFail(ctx, doc); err != nil {
		t.Fatalf("SaveOrFail failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "spud.yaml")); err != nil {
		t.Errorf("expected a yaml file: %v", err)
	}

	state := db.State().(core.DatabaseState)
	if state.TypeKey != "kind" || state.StoreType != "fs" {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestDatabase_GlobalHooks(t *testing.T) {
	saved := 0
	hooks := core.NewHooks().After(core.StageSave, func(ctx context.Context, doc core.Document) core.Outcome {
		saved++
		return core.Continue
	})
	db, err := platform.New(context.Background(), "",
		platform.WithAdapter(platform.AdapterMemory),
		platform.WithHooks(hooks),
		platform.WithIDGenerator(func() string { return "fixed" }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	docs := []core.Document{core.NewGeneric()}
	docs[0].(*core.Generic).Set("n", 1)
	_, ok, err := db.BulkSave(context.Background(), docs)
	if err != nil || !ok {
		t.Fatalf("BulkSave failed: ok=%v err=%v", ok, err)
	}
	if id, _ := docs[0].Identity(); id != "fixed" {
		t.Errorf("expected generated id 'fixed', got %q", id)
	}
	if saved != 1 {
		t.Errorf("expected after-save hook once, got %d", saved)
	}
}
