package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/andymorris/couch-potato/pkg/core"
)

// Query runs a view on the server. AllDocs maps to _all_docs; any other name
// needs spec.Design. Pattern is applied on the client to _all_docs rows,
// before Skip and Limit. A reduced _all_docs query counts the rows and
// ignores Skip and Limit.
func (s *Store) Query(ctx context.Context, spec core.ViewSpec) (core.ViewResult, error) {
	path := core.AllDocs
	if spec.Name != core.AllDocs {
		if spec.Name == "" || spec.Design == "" {
			return core.ViewResult{}, fmt.Errorf("%w: %w", core.ErrInvalidArgument, errMissingDesign)
		}
		path = "_design/" + url.PathEscape(spec.Design) + "/_view/" + url.PathEscape(spec.Name)
	}
	if spec.Skip < 0 || spec.Limit < 0 {
		return core.ViewResult{}, fmt.Errorf("%w: negative skip or limit", core.ErrInvalidArgument)
	}
	if spec.Pattern != "" {
		if spec.Name != core.AllDocs {
			return core.ViewResult{}, fmt.Errorf("%w: pattern only applies to %s", core.ErrInvalidArgument, core.AllDocs)
		}
		if !doublestar.ValidatePattern(spec.Pattern) {
			return core.ViewResult{}, fmt.Errorf("%w: invalid pattern %q", core.ErrInvalidArgument, spec.Pattern)
		}
	}

	// _all_docs cannot reduce; count the rows instead.
	serverReduce := spec.Reduce && spec.Name != core.AllDocs
	clientPaging := spec.Pattern != "" || spec.Reduce

	query, err := viewParams(spec, serverReduce, clientPaging)
	if err != nil {
		return core.ViewResult{}, err
	}

	var resp allDocsResponse
	if spec.Keys != nil {
		err = s.do(ctx, http.MethodPost, path, query, map[string]any{"keys": spec.Keys}, &resp)
	} else {
		err = s.do(ctx, http.MethodGet, path, query, nil, &resp)
	}
	if err != nil {
		return core.ViewResult{}, err
	}

	if serverReduce {
		var value any = 0
		if len(resp.Rows) > 0 {
			value = resp.Rows[0].Value
		}
		return core.ViewResult{Value: value, Reduced: true}, nil
	}

	rows := make([]core.Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		if r.Error != "" {
			continue
		}
		if spec.Pattern != "" {
			if ok, _ := doublestar.Match(spec.Pattern, r.ID); !ok {
				continue
			}
		}
		rows = append(rows, core.Row{ID: r.ID, Key: r.Key, Value: r.Value, Doc: r.Doc})
	}
	if spec.Reduce {
		return core.ViewResult{Value: len(rows), Reduced: true}, nil
	}
	if clientPaging {
		rows = page(rows, spec.Skip, spec.Limit)
	}
	return core.ViewResult{Rows: rows}, nil
}

func viewParams(spec core.ViewSpec, reduce, clientPaging bool) (url.Values, error) {
	q := url.Values{}
	setJSON := func(name string, v any) error {
		if v == nil {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %s is not JSON: %v", core.ErrInvalidArgument, name, err)
		}
		q.Set(name, string(data))
		return nil
	}
	if err := setJSON("key", spec.Key); err != nil {
		return nil, err
	}
	if err := setJSON("startkey", spec.StartKey); err != nil {
		return nil, err
	}
	if err := setJSON("endkey", spec.EndKey); err != nil {
		return nil, err
	}
	if spec.Descending {
		q.Set("descending", "true")
	}
	if !clientPaging {
		if spec.Limit > 0 {
			q.Set("limit", strconv.Itoa(spec.Limit))
		}
		if spec.Skip > 0 {
			q.Set("skip", strconv.Itoa(spec.Skip))
		}
	}
	if spec.IncludeDocs && !reduce {
		q.Set("include_docs", "true")
	}
	if spec.Name != core.AllDocs {
		q.Set("reduce", strconv.FormatBool(reduce))
	}
	return q, nil
}

func page(rows []core.Row, skip, limit int) []core.Row {
	skip = max(skip, 0)
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
