package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/andymorris/couch-potato/pkg/core"
)

// mockStore implements core.Store in memory and counts calls.
// Conflicts can be scripted to exercise the retry paths.
type mockStore struct {
	docs map[string]core.Raw
	seq  int

	writeConflicts      int
	deleteConflicts     int
	deleteAfterConflict bool

	bulkResults []core.BatchResult
	bulkWrites  [][]core.Raw
	viewResult  core.ViewResult

	calls map[string]int
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:  make(map[string]core.Raw),
		calls: make(map[string]int),
	}
}

func (m *mockStore) nextRev() string {
	m.seq++
	return fmt.Sprintf("%d-rev", m.seq)
}

func (m *mockStore) put(raw core.Raw) {
	m.docs[raw.ID()] = raw.Clone()
}

func (m *mockStore) Get(ctx context.Context, id string) (core.Raw, bool, error) {
	m.calls["get"]++
	raw, ok := m.docs[id]
	return raw.Clone(), ok, nil
}

func (m *mockStore) BulkLoad(ctx context.Context, ids []string) ([]core.LoadResult, error) {
	m.calls["bulkload"]++
	out := make([]core.LoadResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.LoadResult{ID: id, Doc: m.docs[id].Clone()})
	}
	return out, nil
}

func (m *mockStore) WriteNew(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	m.calls["writenew"]++
	id := doc.ID()
	if id == "" {
		id = fmt.Sprintf("doc-%d", len(m.docs)+1)
	}
	if _, exists := m.docs[id]; exists {
		return core.WriteResult{}, core.ErrConflict
	}
	rev := m.nextRev()
	m.docs[id] = doc.WithIdentity(id, rev)
	return core.WriteResult{ID: id, Rev: rev}, nil
}

func (m *mockStore) WriteExisting(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	m.calls["writeexisting"]++
	if m.writeConflicts > 0 {
		m.writeConflicts--
		return core.WriteResult{}, core.ErrConflict
	}
	cur, ok := m.docs[doc.ID()]
	if !ok {
		return core.WriteResult{}, core.ErrNotFound
	}
	if cur.Rev() != doc.Rev() {
		return core.WriteResult{}, core.ErrConflict
	}
	rev := m.nextRev()
	m.docs[doc.ID()] = doc.WithIdentity(doc.ID(), rev)
	return core.WriteResult{ID: doc.ID(), Rev: rev}, nil
}

func (m *mockStore) BulkWrite(ctx context.Context, docs []core.Raw) ([]core.BatchResult, error) {
	m.calls["bulkwrite"]++
	m.bulkWrites = append(m.bulkWrites, docs)
	if m.bulkResults != nil {
		return m.bulkResults, nil
	}
	out := make([]core.BatchResult, 0, len(docs))
	for _, d := range docs {
		cur, exists := m.docs[d.ID()]
		if exists && cur.Rev() != d.Rev() {
			out = append(out, core.BatchResult{ID: d.ID(), Error: "conflict", Reason: "Document update conflict."})
			continue
		}
		rev := m.nextRev()
		m.docs[d.ID()] = d.WithIdentity(d.ID(), rev)
		out = append(out, core.BatchResult{ID: d.ID(), OK: true, Rev: rev})
	}
	return out, nil
}

func (m *mockStore) Delete(ctx context.Context, id, rev string) error {
	m.calls["delete"]++
	if m.deleteConflicts > 0 {
		m.deleteConflicts--
		if m.deleteAfterConflict {
			delete(m.docs, id)
		}
		return core.ErrConflict
	}
	cur, ok := m.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	if cur.Rev() != rev {
		return core.ErrConflict
	}
	delete(m.docs, id)
	return nil
}

func (m *mockStore) Query(ctx context.Context, spec core.ViewSpec) (core.ViewResult, error) {
	m.calls["query"]++
	return m.viewResult, nil
}

// person is a small document type with one required field.
type person struct {
	core.Base
	Name  string
	Age   int
	hooks *core.Hooks
}

func (p *person) DocType() string { return "person" }

func (p *person) Hooks() *core.Hooks { return p.hooks }

func (p *person) SetName(name string) {
	p.Name = name
	p.Touch()
}

func (p *person) Encode() (core.Raw, error) {
	raw := core.Raw{"name": p.Name, "age": p.Age}
	p.EncodeIdentity(raw)
	return raw, nil
}

func (p *person) Decode(raw core.Raw) error {
	p.DecodeIdentity(raw)
	p.Name, _ = raw["name"].(string)
	p.Age, _ = raw["age"].(int)
	return nil
}

func (p *person) Validate(ctx context.Context) core.Errors {
	var errs core.Errors
	if p.Name == "" {
		errs.Add("name", "can't be blank")
	}
	return errs
}

func newDatabase(store core.Store) *core.Database {
	db := core.NewDatabase(store, core.Config{})
	db.Register("person", func() core.Document { return &person{} })
	return db
}

// persisted saves a valid person and fails the test on error.
func persisted(t *testing.T, db *core.Database, name string) *person {
	t.Helper()
	p := &person{}
	p.SetName(name)
	ok, err := db.Save(context.Background(), p)
	if err != nil || !ok {
		t.Fatalf("setup save failed: ok=%v err=%v", ok, err)
	}
	return p
}
