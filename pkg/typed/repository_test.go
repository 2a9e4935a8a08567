package typed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/andymorris/couch-potato/pkg/adapters/memory"
	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/typed"
	"github.com/andymorris/couch-potato/pkg/validate"
)

type UserProfile struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Age   int    `json:"age"`
}

type counter struct {
	Count int `json:"count"`
}

func setupDatabase(t *testing.T) (*core.Database, *memory.Store) {
	t.Helper()
	store := memory.New(memory.Config{})
	return core.NewDatabase(store, core.Config{}), store
}

func TestTypedRepository(t *testing.T) {
	db, store := setupDatabase(t)
	ctx := context.Background()

	users := typed.NewRepository[UserProfile](db, "user")

	alice := users.New(UserProfile{Name: "Alice", Email: "alice@example.com", Age: 30})
	if ok, err := users.Save(ctx, alice); err != nil || !ok {
		t.Fatalf("Save failed: ok=%v err=%v", ok, err)
	}
	id, _ := alice.Identity()

	raw, _, _ := store.Get(ctx, id)
	if raw["type"] != "user" || raw["name"] != "Alice" {
		t.Errorf("unexpected stored form: %v", raw)
	}

	retrieved, found, err := users.Load(ctx, id)
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if retrieved.Data.Name != "Alice" || retrieved.Data.Age != 30 {
		t.Errorf("unexpected data: %+v", retrieved.Data)
	}
	if retrieved.IsDirty() {
		t.Error("loaded model should be clean")
	}

	bob := users.New(UserProfile{Name: "Bob", Age: 25})
	if err := users.SaveOrFail(ctx, bob); err != nil {
		t.Fatal(err)
	}

	list, err := users.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	foundAlice, foundBob := false, false
	for _, u := range list {
		switch u.Data.Name {
		case "Alice":
			foundAlice = true
		case "Bob":
			foundBob = true
		}
	}
	if !foundAlice || !foundBob {
		t.Errorf("All missing users. Found: %+v", list)
	}
}

func TestModel_DirtyTracking(t *testing.T) {
	db, _ := setupDatabase(t)
	ctx := context.Background()
	users := typed.NewRepository[UserProfile](db, "user")

	m := users.New(UserProfile{Name: "Carol"})
	if ok, err := m.Save(ctx); err != nil || !ok {
		t.Fatalf("Save failed: ok=%v err=%v", ok, err)
	}
	_, rev := m.Identity()
	if m.IsDirty() {
		t.Fatal("saved model should be clean")
	}

	// Direct field change, no Touch.
	m.Data.Age = 52
	if !m.IsDirty() {
		t.Fatal("changing Data should make the model dirty")
	}
	if ok, err := m.Save(ctx); err != nil || !ok {
		t.Fatalf("Save failed: ok=%v err=%v", ok, err)
	}
	if _, now := m.Identity(); now == rev {
		t.Error("expected a new revision")
	}
}

func TestModel_Detached(t *testing.T) {
	m := &typed.Model[UserProfile]{}
	if _, err := m.Save(context.Background()); !errors.Is(err, typed.ErrDetached) {
		t.Errorf("expected ErrDetached, got %v", err)
	}
	if _, err := m.Destroy(context.Background()); !errors.Is(err, typed.ErrDetached) {
		t.Errorf("expected ErrDetached, got %v", err)
	}
}

func TestRepository_Rules(t *testing.T) {
	db, store := setupDatabase(t)
	ctx := context.Background()
	rules := validate.New().
		Require("name").
		MustRule("age", "age >= 18", "must be an adult")
	users := typed.NewRepository[UserProfile](db, "user", typed.WithRules(rules))

	kid := users.New(UserProfile{Age: 9})
	ok, err := users.Save(ctx, kid)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ok {
		t.Fatal("expected validation failure")
	}
	if !kid.Errors().Has("name") || !kid.Errors().Has("age") {
		t.Errorf("unexpected errors: %v", kid.Errors().Map())
	}
	if store.Len() != 0 {
		t.Error("invalid model was written")
	}

	err = users.SaveOrFail(ctx, kid)
	if !errors.Is(err, core.ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
}

func TestRepository_SaveWithRetry(t *testing.T) {
	db, store := setupDatabase(t)
	ctx := context.Background()
	counters := typed.NewRepository[counter](db, "counter")

	c := counters.New(counter{})
	if err := counters.SaveOrFail(ctx, c); err != nil {
		t.Fatal(err)
	}
	id, rev := c.Identity()

	// A concurrent writer bumps the counter behind our back.
	raw, _, _ := store.Get(ctx, id)
	raw["count"] = 10
	if _, err := store.WriteExisting(ctx, raw); err != nil {
		t.Fatal(err)
	}

	ok, err := counters.SaveWithRetry(ctx, c, func(m *typed.Model[counter]) error {
		m.Data.Count++
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("SaveWithRetry failed: ok=%v err=%v", ok, err)
	}
	if c.Data.Count != 11 {
		t.Errorf("expected the increment on top of the concurrent write, got %d", c.Data.Count)
	}
	if _, now := c.Identity(); core.RevisionGeneration(now) != core.RevisionGeneration(rev)+2 {
		t.Error("expected two generations after the concurrent write and ours")
	}
}

func TestRepository_BulkAndDestroy(t *testing.T) {
	db, store := setupDatabase(t)
	ctx := context.Background()
	users := typed.NewRepository[UserProfile](db, "user")
	notes := typed.NewRepository[counter](db, "counter")

	batch := []*typed.Model[UserProfile]{
		users.New(UserProfile{Name: "Dan"}),
		users.New(UserProfile{Name: "Erin"}),
	}
	results, ok, err := users.BulkSave(ctx, batch)
	if err != nil || !ok || len(results) != 2 {
		t.Fatalf("BulkSave failed: ok=%v err=%v results=%v", ok, err, results)
	}
	ids := make([]string, 0, 2)
	for _, m := range batch {
		id, rev := m.Identity()
		if id == "" || rev == "" {
			t.Fatalf("bulk did not assign identity: %q %q", id, rev)
		}
		ids = append(ids, id)
	}

	loaded, err := users.LoadMany(ctx, ids)
	if err != nil || len(loaded) != 2 {
		t.Fatalf("LoadMany failed: %v (%d)", err, len(loaded))
	}

	if _, err := notes.LoadOrFail(ctx, ids[0]); !errors.Is(err, typed.ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}

	if ok, err := users.Destroy(ctx, loaded[0]); err != nil || !ok {
		t.Fatalf("Destroy failed: ok=%v err=%v", ok, err)
	}
	if store.Len() != 1 {
		t.Errorf("expected one document left, got %d", store.Len())
	}
}

func TestRepository_NewWithID(t *testing.T) {
	db, store := setupDatabase(t)
	ctx := context.Background()
	users := typed.NewRepository[UserProfile](db, "user")

	m := users.NewWithID("users/alice", UserProfile{Name: "Alice"})
	if err := users.SaveOrFail(ctx, m); err != nil {
		t.Fatalf("SaveOrFail failed: %v", err)
	}
	if id, _ := m.Identity(); id != "users/alice" {
		t.Errorf("expected requested id, got %q", id)
	}
	if _, found, _ := store.Get(ctx, "users/alice"); !found {
		t.Error("document not stored under the requested id")
	}

	dup := users.NewWithID("users/alice", UserProfile{Name: "Impostor"})
	if _, err := users.Save(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected conflict for a taken id, got %v", err)
	}
}
