package typed

import (
	"context"
	"errors"
	"fmt"

	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/validate"
)

// ErrWrongType is returned when a loaded document belongs to another type.
var ErrWrongType = errors.New("document has a different type")

// Option configures a Repository.
type Option func(*options)

type options struct {
	rules *validate.Ruleset
	hooks *core.Hooks
}

// WithRules validates every model of the repository against rs.
func WithRules(rs *validate.Ruleset) Option {
	return func(o *options) { o.rules = rs }
}

// WithHooks attaches lifecycle hooks to every model of the repository.
func WithHooks(h *core.Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// Repository gives type-safe access to the documents of one type.
type Repository[T any] struct {
	db       *core.Database
	typeName string
	opts     options
}

// NewRepository registers typeName on db and returns a typed wrapper.
func NewRepository[T any](db *core.Database, typeName string, opts ...Option) *Repository[T] {
	r := &Repository[T]{db: db, typeName: typeName}
	for _, opt := range opts {
		opt(&r.opts)
	}
	db.Register(typeName, func() core.Document { return r.blank() })
	return r
}

func (r *Repository[T]) blank() *Model[T] {
	return &Model[T]{typeName: r.typeName, rules: r.opts.rules, hooks: r.opts.hooks}
}

// TypeName returns the discriminator written with every model.
func (r *Repository[T]) TypeName() string { return r.typeName }

// New returns an unsaved model holding data, bound to the repository's Database.
func (r *Repository[T]) New(data T) *Model[T] {
	m := r.blank()
	m.Data = data
	m.Touch()
	m.SetDatabase(r.db)
	return m
}

// NewWithID is New with a requested id for the first write. The store
// reports a conflict when the id is taken.
func (r *Repository[T]) NewWithID(id string, data T) *Model[T] {
	m := r.New(data)
	m.wantID = id
	return m
}

// Save persists m. See core.Database.Save.
func (r *Repository[T]) Save(ctx context.Context, m *Model[T], opts ...core.SaveOption) (bool, error) {
	return r.db.Save(ctx, m, opts...)
}

// SaveOrFail persists m or returns a *core.ValidationError.
func (r *Repository[T]) SaveOrFail(ctx context.Context, m *Model[T]) error {
	return r.db.SaveOrFail(ctx, m)
}

// SaveWithRetry applies mutate and saves, reloading and reapplying on
// conflict. See core.Database.SaveWithRetry.
func (r *Repository[T]) SaveWithRetry(ctx context.Context, m *Model[T], mutate func(m *Model[T]) error) (bool, error) {
	return r.db.SaveWithRetry(ctx, m, func(doc core.Document) error {
		return mutate(doc.(*Model[T]))
	})
}

// Destroy deletes m.
func (r *Repository[T]) Destroy(ctx context.Context, m *Model[T]) (bool, error) {
	return r.db.Destroy(ctx, m)
}

// BulkSave writes models in one request. See core.Database.BulkSave.
func (r *Repository[T]) BulkSave(ctx context.Context, models []*Model[T], opts ...core.SaveOption) ([]core.BatchResult, bool, error) {
	docs := make([]core.Document, len(models))
	for i, m := range models {
		docs[i] = m
	}
	return r.db.BulkSave(ctx, docs, opts...)
}

// Load retrieves a model by id.
func (r *Repository[T]) Load(ctx context.Context, id string) (*Model[T], bool, error) {
	doc, found, err := r.db.Load(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	m, err := r.cast(doc)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// LoadOrFail is Load returning a *core.NotFoundError for a missing id.
func (r *Repository[T]) LoadOrFail(ctx context.Context, id string) (*Model[T], error) {
	doc, err := r.db.LoadOrFail(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.cast(doc)
}

// LoadMany retrieves several models in one round-trip, skipping missing ids.
func (r *Repository[T]) LoadMany(ctx context.Context, ids []string) ([]*Model[T], error) {
	docs, err := r.db.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return r.castAll(docs)
}

// All lists every model of this type.
func (r *Repository[T]) All(ctx context.Context) ([]*Model[T], error) {
	out, err := r.db.View(ctx, core.ViewSpec{Name: core.AllDocs, IncludeDocs: true})
	if err != nil {
		return nil, err
	}
	result := make([]*Model[T], 0, len(out.Docs))
	for _, doc := range out.Docs {
		if m, ok := doc.(*Model[T]); ok && m.typeName == r.typeName {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *Repository[T]) castAll(docs []core.Document) ([]*Model[T], error) {
	result := make([]*Model[T], 0, len(docs))
	for _, doc := range docs {
		m, err := r.cast(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (r *Repository[T]) cast(doc core.Document) (*Model[T], error) {
	m, ok := doc.(*Model[T])
	if !ok || m.typeName != r.typeName {
		id, _ := doc.Identity()
		return nil, fmt.Errorf("%s is not a %s: %w", id, r.typeName, ErrWrongType)
	}
	return m, nil
}
