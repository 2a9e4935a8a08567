package platform

import (
	"log/slog"
	"net/http"

	"github.com/andymorris/couch-potato/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS      = "fs"
	AdapterMemory  = "memory"
	AdapterCouchDB = "couchdb"
)

// options holds the internal configuration for opening a database.
type options struct {
	store   core.Store
	logger  *slog.Logger
	adapter string
	typeKey string
	hooks   *core.Hooks
	newID   func() string
	config  map[string]any
}

// Option defines a functional option for configuring a database.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: AdapterFS,
		config:  make(map[string]any),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithAdapter selects the storage adapter by name: "fs" (default),
// "memory" or "couchdb".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithStore injects a ready store, skipping adapter selection.
// The store is still initialized when it implements core.Initializer.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLogger sets the logger for the database and its adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTypeKey overrides the field holding the type discriminator.
func WithTypeKey(key string) Option {
	return func(o *options) {
		o.typeKey = key
	}
}

// WithHooks registers hooks that run for every document.
func WithHooks(hooks *core.Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithIDGenerator sets the generator for client-side document ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}

// WithAutoInit creates the directory (fs) or database (couchdb) when missing.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithMustExist fails when the directory or database is missing.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithSystemDir sets the hidden directory of the fs adapter.
// Defaults to ".couchpotato".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithFormat sets the file format of new documents in the fs adapter:
// "json" (default) or "yaml".
func WithFormat(format string) Option {
	return func(o *options) {
		o.config["format"] = format
	}
}

// WithStrict enables strict mode for the fs serializers.
// When enabled, numbers are parsed as json.Number to preserve precision
// of large integers.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.config["strict"] = strict
	}
}

// WithReadOnly enables read-only mode for the fs adapter.
// In this mode:
// 1. Writes return core.ErrReadOnly.
// 2. Initialization (Mkdir) is skipped.
// 3. The dev sandbox is BYPASSED (uses real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDevSafety controls the sandbox used when running via `go run`.
// By default (true), the fs adapter is re-rooted in a temporary directory
// to prevent accidental data loss.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithWatcherErrorHandler registers a callback for errors raised while
// watching (fs events, couchdb changes feed). They are only logged otherwise.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithCredentials sets basic auth credentials for the couchdb adapter.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.config["username"] = username
		o.config["password"] = password
	}
}

// WithHTTPClient sets the HTTP client of the couchdb adapter.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.config["http_client"] = client
	}
}
