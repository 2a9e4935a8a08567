package core

import (
	"context"
	"fmt"
)

// Load fetches a document by id. found is false when it does not exist.
// An empty id is a programming error and never reaches the store.
func (db *Database) Load(ctx context.Context, id string) (doc Document, found bool, err error) {
	if id == "" {
		return nil, false, invalidArgument("load requires a document id")
	}
	raw, found, err := db.store.Get(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	doc, err = db.decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", id, err)
	}
	db.bind(doc)
	return doc, true, nil
}

// LoadOrFail is Load returning a *NotFoundError for a missing document.
func (db *Database) LoadOrFail(ctx context.Context, id string) (Document, error) {
	doc, found, err := db.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{IDs: []string{id}}
	}
	return doc, nil
}

// LoadMany fetches several documents in one round-trip. Missing ids are
// omitted; the order follows the store response.
func (db *Database) LoadMany(ctx context.Context, ids []string) ([]Document, error) {
	if ids == nil {
		return nil, invalidArgument("load requires document ids")
	}
	for i, id := range ids {
		if id == "" {
			return nil, invalidArgument("empty document id at index %d", i)
		}
	}

	rows, err := db.store.BulkLoad(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load %d documents: %w", len(ids), err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		if row.Doc == nil {
			continue
		}
		doc, err := db.decode(row.Doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", row.ID, err)
		}
		db.bind(doc)
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadManyOrFail is LoadMany returning a *NotFoundError naming every
// requested id that is missing.
func (db *Database) LoadManyOrFail(ctx context.Context, ids []string) ([]Document, error) {
	docs, err := db.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		id, _ := doc.Identity()
		seen[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	return docs, nil
}
