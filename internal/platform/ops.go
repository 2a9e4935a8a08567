package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/andymorris/couch-potato/pkg/adapters/couchdb"
	"github.com/andymorris/couch-potato/pkg/adapters/fs"
	"github.com/andymorris/couch-potato/pkg/adapters/memory"
	"github.com/andymorris/couch-potato/pkg/core"
)

// ErrUnknownAdapter is returned for an adapter name no factory handles.
var ErrUnknownAdapter = errors.New("unknown adapter")

// ErrNotReconcilable is returned by Reconcile for stores without an index.
var ErrNotReconcilable = errors.New("store does not support reconciliation")

// reconciler is implemented by stores that can diff external changes.
type reconciler interface {
	Reconcile(ctx context.Context) ([]core.Event, error)
}

// Open builds and initializes the store selected by the options.
// The uri is adapter-specific: a directory for "fs", a database URL such as
// http://localhost:5984/potatoes for "couchdb", ignored for "memory".
func Open(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	o := applyOptions(opts)
	return open(ctx, uri, o)
}

func open(ctx context.Context, uri string, o *options) (core.Store, error) {
	store := o.store
	if store == nil {
		var err error
		switch o.adapter {
		case AdapterFS:
			store, err = openFS(uri, o)
		case AdapterMemory:
			store = memory.New(memory.Config{Logger: o.logger, NewID: o.newID})
		case AdapterCouchDB:
			store, err = openCouchDB(uri, o)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, o.adapter)
		}
		if err != nil {
			return nil, err
		}
	}

	if initializer, ok := store.(core.Initializer); ok {
		if err := initializer.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// openFS handles path resolution and configuration of the fs adapter.
func openFS(path string, o *options) (*fs.Repository, error) {
	autoInit, _ := o.config["auto_init"].(bool)
	tempDir, _ := o.config["temp_dir"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	strict, _ := o.config["strict"].(bool)
	format, _ := o.config["format"].(string)
	systemDir, _ := o.config["system_dir"].(string)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))
	isReadOnly, _ := o.config["read_only"].(bool)

	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	bypassSafety := isReadOnly || !devSafety

	useTemp := tempDir || (IsDevRun() && !bypassSafety)
	resolvedPath := ResolvePath(path, useTemp)

	if o.logger != nil && useTemp && resolvedPath != path {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", path, "resolved_path", resolvedPath)
	}

	return fs.NewRepository(fs.Config{
		Path:         resolvedPath,
		AutoInit:     autoInit || useTemp,
		MustExist:    mustExist,
		ReadOnly:     isReadOnly,
		Strict:       strict,
		Format:       format,
		SystemDir:    systemDir,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
		NewID:        o.newID,
	}), nil
}

// openCouchDB splits uri into server URL and database name.
func openCouchDB(uri string, o *options) (*couchdb.Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid couchdb uri %q", core.ErrInvalidArgument, uri)
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		return nil, fmt.Errorf("%w: couchdb uri %q names no database", core.ErrInvalidArgument, uri)
	}
	name, err = url.PathUnescape(name)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid database name in %q", core.ErrInvalidArgument, uri)
	}
	u.Path = path.Dir(strings.TrimSuffix(u.Path, "/"))
	u.RawPath = ""

	autoInit, _ := o.config["auto_init"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	username, _ := o.config["username"].(string)
	password, _ := o.config["password"].(string)
	client, _ := o.config["http_client"].(*http.Client)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))

	return couchdb.New(couchdb.Config{
		URL:          u.String(),
		Database:     name,
		Username:     username,
		Password:     password,
		AutoInit:     autoInit,
		MustExist:    mustExist,
		HTTPClient:   client,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
	})
}

// Reconcile opens the store at uri and reports documents changed outside
// the library since the last reconciliation.
func Reconcile(ctx context.Context, uri string, opts ...Option) ([]core.Event, error) {
	store, err := Open(ctx, uri, opts...)
	if err != nil {
		return nil, err
	}
	r, ok := store.(reconciler)
	if !ok {
		return nil, ErrNotReconcilable
	}
	return r.Reconcile(ctx)
}
