package core

import (
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// EvaluateView runs spec over docs in process. It backs stores that have
// no query engine of their own.
func EvaluateView(spec ViewSpec, docs []Raw) (ViewResult, error) {
	var rows []Row
	switch {
	case spec.Name == AllDocs:
		for _, doc := range docs {
			id := doc.ID()
			if spec.Pattern != "" {
				ok, err := doublestar.Match(spec.Pattern, id)
				if err != nil {
					return ViewResult{}, fmt.Errorf("invalid pattern %q: %w", spec.Pattern, err)
				}
				if !ok {
					continue
				}
			}
			rows = append(rows, Row{ID: id, Key: id, Value: map[string]any{"rev": doc.Rev()}, Doc: doc})
		}
	case spec.Map != nil:
		for _, doc := range docs {
			spec.Map(doc, func(key, value any) {
				rows = append(rows, Row{ID: doc.ID(), Key: key, Value: value, Doc: doc})
			})
		}
	default:
		return ViewResult{}, invalidArgument("view %s/%s has no map function", spec.Design, spec.Name)
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := Collate(a.Key, b.Key); c != 0 {
			return c
		}
		return Collate(a.ID, b.ID)
	})
	if spec.Descending {
		slices.Reverse(rows)
	}
	rows = filterRows(spec, rows)

	if spec.Reduce {
		return ViewResult{Value: len(rows), Reduced: true}, nil
	}

	if spec.Skip > 0 {
		if spec.Skip >= len(rows) {
			rows = nil
		} else {
			rows = rows[spec.Skip:]
		}
	}
	if spec.Limit > 0 && len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}
	if !spec.IncludeDocs {
		for i := range rows {
			rows[i].Doc = nil
		}
	} else {
		for i := range rows {
			rows[i].Doc = rows[i].Doc.Clone()
		}
	}
	return ViewResult{Rows: rows}, nil
}

func filterRows(spec ViewSpec, rows []Row) []Row {
	if spec.Key == nil && spec.Keys == nil && spec.StartKey == nil && spec.EndKey == nil {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		if spec.Key != nil && Collate(row.Key, spec.Key) != 0 {
			continue
		}
		if spec.Keys != nil && !slices.ContainsFunc(spec.Keys, func(k any) bool { return Collate(row.Key, k) == 0 }) {
			continue
		}
		if spec.StartKey != nil {
			c := Collate(row.Key, spec.StartKey)
			if (!spec.Descending && c < 0) || (spec.Descending && c > 0) {
				continue
			}
		}
		if spec.EndKey != nil {
			c := Collate(row.Key, spec.EndKey)
			if (!spec.Descending && c > 0) || (spec.Descending && c < 0) {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}
