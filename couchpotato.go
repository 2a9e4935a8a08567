package couchpotato

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/andymorris/couch-potato/internal/platform"
	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/typed"
)

// Version of the library.
const Version = "0.1.0"

// --- Types ---

// Database is a public alias for the persistence coordinator.
type Database = core.Database

// Model is a public alias for the typed document model.
type Model[T any] = typed.Model[T]

// Repository is a public alias for the typed repository.
type Repository[T any] = typed.Repository[T]

// --- Configuration ---

// Option defines a functional option for opening a Database.
type Option = platform.Option

// WithAdapter selects the storage adapter: "fs" (default), "memory" or "couchdb".
func WithAdapter(name string) Option { return platform.WithAdapter(name) }

// WithStore injects a custom store.
func WithStore(store core.Store) Option { return platform.WithStore(store) }

// WithLogger sets the logger of the database and adapter.
func WithLogger(logger *slog.Logger) Option { return platform.WithLogger(logger) }

// WithTypeKey overrides the type discriminator field ("type").
func WithTypeKey(key string) Option { return platform.WithTypeKey(key) }

// WithHooks registers hooks that run for every document.
func WithHooks(hooks *core.Hooks) Option { return platform.WithHooks(hooks) }

// WithIDGenerator sets the generator of client-side ids.
func WithIDGenerator(fn func() string) Option { return platform.WithIDGenerator(fn) }

// WithAutoInit creates the directory or database when missing.
func WithAutoInit(auto bool) Option { return platform.WithAutoInit(auto) }

// WithMustExist fails when the directory or database is missing.
func WithMustExist(must bool) Option { return platform.WithMustExist(must) }

// WithForceTemp forces the fs adapter into a temporary directory.
func WithForceTemp(force bool) Option { return platform.WithForceTemp(force) }

// WithDevSafety controls the `go run` sandbox of the fs adapter.
func WithDevSafety(enabled bool) Option { return platform.WithDevSafety(enabled) }

// WithSystemDir sets the hidden directory of the fs adapter.
func WithSystemDir(name string) Option { return platform.WithSystemDir(name) }

// WithFormat sets the file format of new fs documents ("json" or "yaml").
func WithFormat(format string) Option { return platform.WithFormat(format) }

// WithStrict keeps numbers as json.Number in the fs adapter.
func WithStrict(strict bool) Option { return platform.WithStrict(strict) }

// WithReadOnly rejects writes in the fs adapter.
func WithReadOnly(enabled bool) Option { return platform.WithReadOnly(enabled) }

// WithWatcherErrorHandler receives errors raised while watching.
func WithWatcherErrorHandler(fn func(error)) Option { return platform.WithWatcherErrorHandler(fn) }

// WithCredentials sets basic auth for the couchdb adapter.
func WithCredentials(username, password string) Option {
	return platform.WithCredentials(username, password)
}

// WithHTTPClient sets the HTTP client of the couchdb adapter.
func WithHTTPClient(client *http.Client) Option { return platform.WithHTTPClient(client) }

// --- Entry points ---

// New opens the store at uri and returns a Database on top of it.
func New(ctx context.Context, uri string, opts ...Option) (*Database, error) {
	return platform.New(ctx, uri, opts...)
}

// Open returns the initialized store without a Database.
func Open(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	return platform.Open(ctx, uri, opts...)
}

// Reconcile reports documents changed outside the library since the last call.
func Reconcile(ctx context.Context, uri string, opts ...Option) ([]core.Event, error) {
	return platform.Reconcile(ctx, uri, opts...)
}

// NewRepository binds a typed repository to db.
func NewRepository[T any](db *Database, typeName string, opts ...typed.Option) *Repository[T] {
	return typed.NewRepository[T](db, typeName, opts...)
}

// FindRoot looks upwards for a project root.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
