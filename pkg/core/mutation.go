package core

import (
	"context"
	"errors"
	"fmt"
)

func (i Intent) mutationStage() Stage {
	if i == IntentCreate {
		return StageCreate
	}
	return StageUpdate
}

// SaveOption tunes a single save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	validate bool
}

func newSaveOptions(opts []SaveOption) saveOptions {
	o := saveOptions{validate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithoutValidation skips the validation stages; errors are left untouched.
func WithoutValidation() SaveOption {
	return func(o *saveOptions) { o.validate = false }
}

// WithValidation sets whether the validation stages run.
func WithValidation(enabled bool) SaveOption {
	return func(o *saveOptions) { o.validate = enabled }
}

// Save validates and writes doc. It returns false when validation failed or a
// hook aborted. A stale revision fails with a *ConflictError; use
// SaveWithRetry to reload and reapply changes instead.
func (db *Database) Save(ctx context.Context, doc Document, opts ...SaveOption) (bool, error) {
	o := newSaveOptions(opts)
	ok, err := db.saveOnce(ctx, doc, o.validate)
	if err != nil {
		id, _ := doc.Identity()
		if errors.Is(err, ErrConflict) {
			db.debug("save conflict", "id", id)
			return false, &ConflictError{ID: id, Attempts: 1, Err: err}
		}
		return false, fmt.Errorf("failed to save document %s: %w", id, err)
	}
	return ok, nil
}

// SaveOrFail is Save returning a *ValidationError instead of false.
func (db *Database) SaveOrFail(ctx context.Context, doc Document, opts ...SaveOption) error {
	ok, err := db.Save(ctx, doc, opts...)
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Errors: doc.Errors().Clone()}
	}
	return nil
}

func (db *Database) saveOnce(ctx context.Context, doc Document, validate bool) (bool, error) {
	intent := intentOf(doc)
	if validate && !db.validate(ctx, doc, intent) {
		return false, nil
	}
	return db.persist(ctx, doc, intent)
}

// persist runs save(create|update(write)).
func (db *Database) persist(ctx context.Context, doc Document, intent Intent) (bool, error) {
	r := db.stages(doc)
	return r.run(ctx, StageSave, doc, func() (bool, error) {
		return r.run(ctx, intent.mutationStage(), doc, func() (bool, error) {
			if intent == IntentCreate {
				return true, db.create(ctx, doc)
			}
			return true, db.update(ctx, doc)
		})
	})
}

func (db *Database) create(ctx context.Context, doc Document) error {
	raw, err := db.encode(doc)
	if err != nil {
		return err
	}
	res, err := db.store.WriteNew(ctx, raw)
	if err != nil {
		return err
	}
	doc.SetIdentity(res.ID, res.Rev)
	doc.MarkClean()
	db.bind(doc)
	db.debug("document created", "id", res.ID, "rev", res.Rev)
	return nil
}

func (db *Database) update(ctx context.Context, doc Document) error {
	if !doc.IsDirty() {
		return nil
	}
	raw, err := db.encode(doc)
	if err != nil {
		return err
	}
	res, err := db.store.WriteExisting(ctx, raw)
	if err != nil {
		return err
	}
	id, _ := doc.Identity()
	doc.SetIdentity(id, res.Rev)
	doc.MarkClean()
	db.bind(doc)
	db.debug("document updated", "id", id, "rev", res.Rev)
	return nil
}
