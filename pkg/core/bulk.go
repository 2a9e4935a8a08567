package core

import (
	"context"
	"fmt"
)

// BulkSave writes every new or dirty document of docs in one store request.
//
// With validation enabled, documents are validated in order and the first
// failure aborts the batch: ok is false and nothing is written. Otherwise the
// save and create/update hooks run for each document, the write-set is sent
// and successful outcomes are applied to the matching documents. Failed
// outcomes leave their document untouched; inspect results to retry them.
func (db *Database) BulkSave(ctx context.Context, docs []Document, opts ...SaveOption) (results []BatchResult, ok bool, err error) {
	o := newSaveOptions(opts)

	if o.validate {
		for i, doc := range docs {
			if !db.validate(ctx, doc, intentOf(doc)) {
				db.debug("bulk save aborted by validation", "index", i)
				return nil, false, nil
			}
		}
	}

	pending := make(map[string]Document)
	seen := make(map[Document]bool, len(docs))
	var writeSet []Raw
	for _, doc := range docs {
		// A document listed twice is written once.
		if seen[doc] {
			continue
		}
		seen[doc] = true
		intent := intentOf(doc)
		r := db.stages(doc)
		// Hook results do not change what gets written.
		_, _ = r.run(ctx, StageSave, doc, func() (bool, error) {
			return r.run(ctx, intent.mutationStage(), doc, func() (bool, error) {
				return true, nil
			})
		})

		if intent == IntentUpdate && !doc.IsDirty() {
			continue
		}

		raw, err := db.encode(doc)
		if err != nil {
			return nil, false, err
		}
		id, _ := doc.Identity()
		if id == "" {
			id = raw.ID()
		}
		if id == "" {
			id = db.newID()
			raw[IDKey] = id
		}
		pending[id] = doc
		writeSet = append(writeSet, raw)
	}

	if len(writeSet) == 0 {
		return []BatchResult{}, true, nil
	}

	results, err = db.store.BulkWrite(ctx, writeSet)
	if err != nil {
		return nil, false, fmt.Errorf("bulk write of %d documents: %w", len(writeSet), err)
	}

	for _, res := range results {
		if !res.OK {
			db.debug("bulk write rejected", "id", res.ID, "error", res.Error, "reason", res.Reason)
			continue
		}
		doc, found := pending[res.ID]
		if !found {
			continue
		}
		doc.SetIdentity(res.ID, res.Rev)
		doc.MarkClean()
		db.bind(doc)
	}
	db.debug("bulk write done", "sent", len(writeSet), "results", len(results))
	return results, true, nil
}
