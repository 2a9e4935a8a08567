package core

import (
	"context"
	"errors"
	"fmt"
)

// MaxConflictRetries bounds the reloads of SaveWithRetry: a save is
// attempted at most MaxConflictRetries+1 times.
const MaxConflictRetries = 5

// MutateFunc applies the caller's intended change to a document.
type MutateFunc func(doc Document) error

// SaveWithRetry applies mutate and saves. When the store reports a
// conflict, doc is reloaded in place and mutate is applied again, up to
// MaxConflictRetries times. A nil mutate behaves like Save.
func (db *Database) SaveWithRetry(ctx context.Context, doc Document, mutate MutateFunc, opts ...SaveOption) (bool, error) {
	if mutate == nil {
		return db.Save(ctx, doc, opts...)
	}
	o := newSaveOptions(opts)

	for retries := 0; ; retries++ {
		if err := mutate(doc); err != nil {
			return false, fmt.Errorf("mutate: %w", err)
		}

		ok, err := db.saveOnce(ctx, doc, o.validate)
		if err == nil {
			return ok, nil
		}

		id, _ := doc.Identity()
		if !errors.Is(err, ErrConflict) {
			return false, fmt.Errorf("failed to save document %s: %w", id, err)
		}
		if retries >= MaxConflictRetries || id == "" {
			return false, &ConflictError{ID: id, Attempts: retries + 1, Err: err}
		}

		db.debug("save conflict, reloading", "id", id, "retry", retries+1)
		found, err := db.reload(ctx, doc)
		if err != nil {
			return false, err
		}
		if !found {
			return false, &ConflictError{ID: id, Attempts: retries + 1, Err: &NotFoundError{IDs: []string{id}}}
		}
	}
}

// reload replaces doc's state with the stored one.
func (db *Database) reload(ctx context.Context, doc Document) (bool, error) {
	id, _ := doc.Identity()
	raw, found, err := db.store.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to reload %s: %w", id, err)
	}
	if !found {
		return false, nil
	}
	if err := doc.Decode(raw); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", id, err)
	}
	doc.MarkClean()
	db.bind(doc)
	return true, nil
}

// Destroy deletes doc and clears its identity. On a conflict the document
// is reloaded once: if it is gone the destroy counts as done, otherwise it
// is retried exactly once.
func (db *Database) Destroy(ctx context.Context, doc Document) (bool, error) {
	id, _ := doc.Identity()
	if id == "" {
		return false, invalidArgument("cannot destroy a document that was never saved")
	}

	ok, err := db.destroyOnce(ctx, doc)
	if err == nil {
		return ok, nil
	}
	if !errors.Is(err, ErrConflict) {
		return false, fmt.Errorf("failed to destroy %s: %w", id, err)
	}

	db.debug("destroy conflict, reloading", "id", id)
	found, err := db.reload(ctx, doc)
	if err != nil {
		return false, err
	}
	if !found {
		doc.SetIdentity("", "")
		return true, nil
	}

	ok, err = db.destroyOnce(ctx, doc)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return false, &ConflictError{ID: id, Attempts: 2, Err: err}
		}
		return false, fmt.Errorf("failed to destroy %s: %w", id, err)
	}
	return ok, nil
}

func (db *Database) destroyOnce(ctx context.Context, doc Document) (bool, error) {
	return db.stages(doc).run(ctx, StageDestroy, doc, func() (bool, error) {
		id, rev := doc.Identity()
		err := db.store.Delete(ctx, id, rev)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return false, err
		}
		doc.SetIdentity("", "")
		db.debug("document destroyed", "id", id)
		return true, nil
	})
}
