package core

import (
	"context"
	"fmt"
)

// AllDocs is the built-in view listing every document by id.
const AllDocs = "_all_docs"

// Emitter receives the key/value pairs of a map function.
type Emitter func(key, value any)

// MapFunc is a view map function evaluated by local stores.
type MapFunc func(doc Raw, emit Emitter)

// ViewSpec describes a view query. Remote stores use Design and Name;
// local stores evaluate Map, or Pattern when Name is AllDocs.
type ViewSpec struct {
	Design string
	Name   string
	Map    MapFunc

	Key        any
	Keys       []any
	StartKey   any
	EndKey     any
	Limit      int
	Skip       int
	Descending bool

	IncludeDocs bool
	// Reduce asks for the row count instead of the rows.
	Reduce bool
	// Pattern filters ids with a doublestar glob (local stores, AllDocs only).
	Pattern string
}

// Row is one entry of a view result.
type Row struct {
	ID    string
	Key   any
	Value any
	Doc   Raw
}

// ViewResult is either a collection of rows or a reduced scalar.
type ViewResult struct {
	Rows    []Row
	Value   any
	Reduced bool
}

// ViewOutput is what Database.View returns: the raw result plus the decoded
// documents of a collection result.
type ViewOutput struct {
	ViewResult
	Docs []Document
}

// View runs spec against the store and binds the decoded documents to db.
// Reduced results carry no documents.
func (db *Database) View(ctx context.Context, spec ViewSpec) (ViewOutput, error) {
	if spec.Name == "" {
		return ViewOutput{}, invalidArgument("view name is required")
	}
	if spec.Skip < 0 || spec.Limit < 0 {
		return ViewOutput{}, invalidArgument("view skip and limit must not be negative")
	}
	res, err := db.store.Query(ctx, spec)
	if err != nil {
		return ViewOutput{}, fmt.Errorf("view %s/%s: %w", spec.Design, spec.Name, err)
	}
	out := ViewOutput{ViewResult: res}
	if res.Reduced {
		return out, nil
	}
	for _, row := range res.Rows {
		if row.Doc == nil {
			continue
		}
		doc, err := db.decode(row.Doc)
		if err != nil {
			return ViewOutput{}, fmt.Errorf("failed to decode view row %s: %w", row.ID, err)
		}
		db.bind(doc)
		out.Docs = append(out.Docs, doc)
	}
	return out, nil
}

// First returns the first document of spec, or found=false.
func (db *Database) First(ctx context.Context, spec ViewSpec) (Document, bool, error) {
	spec.Limit = 1
	spec.IncludeDocs = true
	spec.Reduce = false
	out, err := db.View(ctx, spec)
	if err != nil {
		return nil, false, err
	}
	if len(out.Docs) == 0 {
		return nil, false, nil
	}
	return out.Docs[0], true, nil
}

// FirstOrFail is First returning a *NotFoundError when the view is empty.
func (db *Database) FirstOrFail(ctx context.Context, spec ViewSpec) (Document, error) {
	doc, found, err := db.First(ctx, spec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{IDs: []string{spec.Design + "/" + spec.Name}}
	}
	return doc, nil
}
