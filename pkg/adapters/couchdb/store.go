// Package couchdb implements core.Store over the CouchDB HTTP API.
//
// Documents travel as JSON. Conflicts (409) surface as core.ErrConflict and
// missing documents (404) as absent results, so the Database retry and
// loader logic works unchanged against a live server.
package couchdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andymorris/couch-potato/pkg/core"
)

// Config holds the connection settings.
type Config struct {
	// URL is the server address, e.g. http://127.0.0.1:5984.
	URL string
	// Database is the database name on the server.
	Database string
	Username string
	Password string

	// AutoInit creates the database during Initialize when it is missing.
	AutoInit bool
	// MustExist makes Initialize fail when the database is missing,
	// regardless of AutoInit.
	MustExist bool

	HTTPClient *http.Client
	Logger     *slog.Logger

	// PollTimeout bounds each longpoll request of the changes feed.
	PollTimeout time.Duration
	// ErrorHandler receives changes-feed errors. They are logged otherwise.
	ErrorHandler func(error)
}

// Store is a core.Store backed by one CouchDB database.
type Store struct {
	config Config
	base   string
	client *http.Client
}

// New validates config and creates a Store. It performs no I/O.
func New(config Config) (*Store, error) {
	if config.Database == "" {
		return nil, fmt.Errorf("%w: couchdb database name is required", core.ErrInvalidArgument)
	}
	u, err := url.Parse(config.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid couchdb url %q", core.ErrInvalidArgument, config.URL)
	}
	// Credentials embedded in the URL are moved to basic auth.
	if u.User != nil {
		if config.Username == "" {
			config.Username = u.User.Username()
			config.Password, _ = u.User.Password()
		}
		u.User = nil
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	u.RawQuery, u.Fragment = "", ""
	return &Store{
		config: config,
		base:   strings.TrimSuffix(u.String(), "/") + "/" + url.PathEscape(config.Database),
		client: client,
	}, nil
}

// Initialize checks that the database exists, creating it when AutoInit is set.
func (s *Store) Initialize(ctx context.Context) error {
	err := s.do(ctx, http.MethodHead, "", nil, nil, nil)
	if err == nil {
		return nil
	}
	if statusCode(err) != http.StatusNotFound {
		return fmt.Errorf("failed to reach database %s: %w", s.config.Database, err)
	}
	if s.config.MustExist || !s.config.AutoInit {
		return fmt.Errorf("database %s does not exist: %w", s.config.Database, core.ErrNotFound)
	}

	s.config.Logger.Info("creating database", "database", s.config.Database)
	err = s.do(ctx, http.MethodPut, "", nil, nil, nil)
	// 412: created concurrently by someone else.
	if err != nil && statusCode(err) != http.StatusPreconditionFailed {
		return fmt.Errorf("failed to create database %s: %w", s.config.Database, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Raw, bool, error) {
	var doc core.Raw
	err := s.do(ctx, http.MethodGet, docPath(id), nil, nil, &doc)
	if statusCode(err) == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

type allDocsRow struct {
	ID    string   `json:"id"`
	Key   any      `json:"key"`
	Value any      `json:"value"`
	Doc   core.Raw `json:"doc"`
	Error string   `json:"error"`
}

type allDocsResponse struct {
	TotalRows int          `json:"total_rows"`
	Rows      []allDocsRow `json:"rows"`
}

func (s *Store) BulkLoad(ctx context.Context, ids []string) ([]core.LoadResult, error) {
	var resp allDocsResponse
	query := url.Values{"include_docs": {"true"}}
	if err := s.do(ctx, http.MethodPost, core.AllDocs, query, map[string]any{"keys": ids}, &resp); err != nil {
		return nil, err
	}

	out := make([]core.LoadResult, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		id := row.ID
		if key, ok := row.Key.(string); ok && id == "" {
			id = key
		}
		// Missing and deleted rows carry no doc.
		out = append(out, core.LoadResult{ID: id, Doc: row.Doc})
	}
	return out, nil
}

type writeResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (s *Store) WriteNew(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	body := doc.Clone()
	delete(body, "_rev")

	var resp writeResponse
	var err error
	if id := doc.ID(); id != "" {
		err = s.do(ctx, http.MethodPut, docPath(id), nil, body, &resp)
	} else {
		delete(body, "_id")
		err = s.do(ctx, http.MethodPost, "", nil, body, &resp)
	}
	if err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{ID: resp.ID, Rev: resp.Rev}, nil
}

func (s *Store) WriteExisting(ctx context.Context, doc core.Raw) (core.WriteResult, error) {
	id, rev := doc.ID(), doc.Rev()
	if id == "" || rev == "" {
		return core.WriteResult{}, fmt.Errorf("%w: update requires _id and _rev", core.ErrInvalidArgument)
	}
	var resp writeResponse
	if err := s.do(ctx, http.MethodPut, docPath(id), nil, doc, &resp); err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{ID: resp.ID, Rev: resp.Rev}, nil
}

func (s *Store) BulkWrite(ctx context.Context, docs []core.Raw) ([]core.BatchResult, error) {
	var results []core.BatchResult
	if err := s.do(ctx, http.MethodPost, "_bulk_docs", nil, map[string]any{"docs": docs}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, id, rev string) error {
	if id == "" || rev == "" {
		return fmt.Errorf("%w: delete requires id and rev", core.ErrInvalidArgument)
	}
	return s.do(ctx, http.MethodDelete, docPath(id), url.Values{"rev": {rev}}, nil, nil)
}

var (
	_ core.Store       = (*Store)(nil)
	_ core.Initializer = (*Store)(nil)
	_ core.Watchable   = (*Store)(nil)
)

// errMissingDesign is returned by Query for a custom view without a design document.
var errMissingDesign = errors.New("view requires a design document name")
