package typed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/validate"
)

// ErrDetached is returned by active-record calls on a Model that was never
// bound to a Database.
var ErrDetached = errors.New("document is detached (missing database)")

// Model is a document whose payload is the struct T. Data is stored as the
// top-level fields of the document, through its JSON form.
type Model[T any] struct {
	core.Base
	Data T

	typeName string
	rules    *validate.Ruleset
	hooks    *core.Hooks
	snapshot []byte
	// wantID is written as "_id" while the model is new.
	wantID string
}

// DocType implements core.TypeNamer.
func (m *Model[T]) DocType() string { return m.typeName }

// Hooks implements core.Hooked.
func (m *Model[T]) Hooks() *core.Hooks { return m.hooks }

// IsDirty reports changes made through Touch or directly on Data since the
// last load or save.
func (m *Model[T]) IsDirty() bool {
	if m.Base.IsDirty() {
		return true
	}
	current, err := json.Marshal(m.Data)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, m.snapshot)
}

// MarkClean records the current Data as the persisted state.
func (m *Model[T]) MarkClean() {
	m.Base.MarkClean()
	m.snapshot, _ = json.Marshal(m.Data)
}

// Validate runs the repository rules against the encoded document.
func (m *Model[T]) Validate(ctx context.Context) core.Errors {
	if m.rules.Len() == 0 {
		return core.Errors{}
	}
	errs, err := m.rules.Document(m)
	if err != nil {
		errs.Add("base", err.Error())
	}
	return errs
}

func (m *Model[T]) Encode() (core.Raw, error) {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}
	raw := make(core.Raw)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("typed data must encode as an object: %w", err)
	}
	if id, _ := m.Identity(); id == "" && m.wantID != "" {
		raw[core.IDKey] = m.wantID
	}
	m.EncodeIdentity(raw)
	return raw, nil
}

func (m *Model[T]) Decode(raw core.Raw) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("document marshal failed: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	m.Data = v
	m.DecodeIdentity(raw)
	return nil
}

// Save persists the model through its bound Database.
func (m *Model[T]) Save(ctx context.Context, opts ...core.SaveOption) (bool, error) {
	db := m.Database()
	if db == nil {
		return false, ErrDetached
	}
	return db.Save(ctx, m, opts...)
}

// Destroy deletes the model through its bound Database.
func (m *Model[T]) Destroy(ctx context.Context) (bool, error) {
	db := m.Database()
	if db == nil {
		return false, ErrDetached
	}
	return db.Destroy(ctx, m)
}

var _ core.Document = (*Model[struct{}])(nil)
var _ core.TypeNamer = (*Model[struct{}])(nil)
var _ core.Hooked = (*Model[struct{}])(nil)
var _ core.SupportsBackReference = (*Model[struct{}])(nil)
