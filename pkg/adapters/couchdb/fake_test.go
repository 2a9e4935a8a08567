package couchdb_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/andymorris/couch-potato/pkg/core"
)

// fakeCouch is a small in-memory CouchDB speaking the subset of the HTTP
// API the store uses.
type fakeCouch struct {
	mu       sync.Mutex
	exists   bool
	docs     map[string]core.Raw
	seq      int
	changes  []map[string]any
	view     map[string]any
	notify   chan struct{}
	requests []string
	user     string

	server *httptest.Server
}

func newFakeCouch(t *testing.T) *fakeCouch {
	t.Helper()
	f := &fakeCouch{exists: true, docs: make(map[string]core.Raw), notify: make(chan struct{})}

	r := mux.NewRouter()
	// Ids such as "people/ann" arrive as a single %2F-escaped segment.
	r.UseEncodedPath()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.requests = append(f.requests, req.Method+" "+req.URL.EscapedPath())
			if u, _, ok := req.BasicAuth(); ok {
				f.user = u
			}
			exists := f.exists
			f.mu.Unlock()
			if !exists && req.Method != http.MethodPut && req.Method != http.MethodHead {
				writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/{db}", f.head).Methods(http.MethodHead)
	r.HandleFunc("/{db}", f.createDB).Methods(http.MethodPut)
	r.HandleFunc("/{db}", f.post).Methods(http.MethodPost)
	r.HandleFunc("/{db}/_all_docs", f.allDocs).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_bulk_docs", f.bulkDocs).Methods(http.MethodPost)
	r.HandleFunc("/{db}/_changes", f.changesFeed).Methods(http.MethodGet)
	r.HandleFunc("/{db}/_design/{ddoc}/_view/{view}", f.viewHandler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/{id}", f.get).Methods(http.MethodGet)
	r.HandleFunc("/{db}/{id}", f.put).Methods(http.MethodPut)
	r.HandleFunc("/{db}/{id}", f.del).Methods(http.MethodDelete)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, reason string) {
	writeJSON(w, code, map[string]string{"error": kind, "reason": reason})
}

func (f *fakeCouch) head(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeCouch) createDB(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exists {
		writeError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
		return
	}
	f.exists = true
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

// store writes doc under id, checking the revision. Callers hold mu.
func (f *fakeCouch) store(id string, doc core.Raw) (string, int, string) {
	cur, exists := f.docs[id]
	if exists && cur.Rev() != doc.Rev() {
		return "", http.StatusConflict, "conflict"
	}
	if !exists && doc.Rev() != "" {
		return "", http.StatusConflict, "conflict"
	}
	rev := core.NextRevision(doc.Rev())
	f.seq++
	close(f.notify)
	f.notify = make(chan struct{})
	if deleted, _ := doc["_deleted"].(bool); deleted {
		delete(f.docs, id)
		f.changes = append(f.changes, map[string]any{"seq": f.seq, "id": id, "deleted": true, "changes": []map[string]string{{"rev": rev}}})
		return rev, http.StatusOK, ""
	}
	f.docs[id] = doc.WithIdentity(id, rev)
	f.changes = append(f.changes, map[string]any{"seq": f.seq, "id": id, "changes": []map[string]string{{"rev": rev}}})
	return rev, http.StatusCreated, ""
}

func (f *fakeCouch) post(w http.ResponseWriter, r *http.Request) {
	var doc core.Raw
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := doc.ID()
	if id == "" {
		id = fmt.Sprintf("generated-%d", f.seq+1)
	}
	rev, code, kind := f.store(id, doc)
	if kind != "" {
		writeError(w, code, kind, "Document update conflict.")
		return
	}
	writeJSON(w, code, map[string]any{"ok": true, "id": id, "rev": rev})
}

func (f *fakeCouch) get(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *fakeCouch) put(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var doc core.Raw
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, code, kind := f.store(id, doc)
	if kind != "" {
		writeError(w, code, kind, "Document update conflict.")
		return
	}
	writeJSON(w, code, map[string]any{"ok": true, "id": id, "rev": rev})
}

func (f *fakeCouch) del(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	rev := r.URL.Query().Get("rev")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		writeError(w, http.StatusNotFound, "not_found", "deleted")
		return
	}
	newRev, code, kind := f.store(id, core.Raw{"_id": id, "_rev": rev, "_deleted": true})
	if kind != "" {
		writeError(w, code, kind, "Document update conflict.")
		return
	}
	writeJSON(w, code, map[string]any{"ok": true, "id": id, "rev": newRev})
}

func (f *fakeCouch) bulkDocs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Docs []core.Raw `json:"docs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(body.Docs))
	for _, d := range body.Docs {
		rev, _, kind := f.store(d.ID(), d)
		if kind != "" {
			out = append(out, map[string]any{"id": d.ID(), "error": kind, "reason": "Document update conflict."})
			continue
		}
		out = append(out, map[string]any{"id": d.ID(), "ok": true, "rev": rev})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (f *fakeCouch) allDocs(w http.ResponseWriter, r *http.Request) {
	includeDocs := r.URL.Query().Get("include_docs") == "true"
	var keys []string
	if r.Method == http.MethodPost {
		var body struct {
			Keys []string `json:"keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		keys = body.Keys
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if keys == nil {
		for id := range f.docs {
			keys = append(keys, id)
		}
		sort.Strings(keys)
	}
	rows := make([]map[string]any, 0, len(keys))
	for _, id := range keys {
		doc, ok := f.docs[id]
		if !ok {
			rows = append(rows, map[string]any{"key": id, "error": "not_found"})
			continue
		}
		row := map[string]any{"id": id, "key": id, "value": map[string]string{"rev": doc.Rev()}}
		if includeDocs {
			row["doc"] = doc
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_rows": len(f.docs), "offset": 0, "rows": rows})
}

func (f *fakeCouch) viewHandler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.view)
}

// changesFeed answers with every change after since, waiting for one when
// none is pending. since=now answers at once with the current sequence.
func (f *fakeCouch) changesFeed(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	for {
		f.mu.Lock()
		last := f.seq
		if since == "now" {
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"results": []any{}, "last_seq": strconv.Itoa(last)})
			return
		}
		after, _ := strconv.Atoi(since)
		var pending []map[string]any
		for _, c := range f.changes {
			if c["seq"].(int) > after {
				pending = append(pending, c)
			}
		}
		wake := f.notify
		f.mu.Unlock()

		if len(pending) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"results": pending, "last_seq": strconv.Itoa(last)})
			return
		}
		select {
		case <-wake:
		case <-r.Context().Done():
			return
		}
	}
}
