package core

import "context"

// Store defines the contract with the remote document store.
// Adhering to this interface keeps the Database independent of the
// transport (HTTP, filesystem, memory).
type Store interface {
	// Get fetches a document. found is false when the id does not exist.
	Get(ctx context.Context, id string) (doc Raw, found bool, err error)

	// BulkLoad fetches several documents in one round-trip.
	// Missing ids come back with a nil Doc.
	BulkLoad(ctx context.Context, ids []string) ([]LoadResult, error)

	// WriteNew stores a document that has no revision yet.
	// It returns ErrConflict when the id is already taken.
	WriteNew(ctx context.Context, doc Raw) (WriteResult, error)

	// WriteExisting stores a new revision. It returns ErrConflict when the
	// "_rev" of doc is not the current one.
	WriteExisting(ctx context.Context, doc Raw) (WriteResult, error)

	// BulkWrite stores many documents, reporting success per document.
	// A per-document failure is not an error.
	BulkWrite(ctx context.Context, docs []Raw) ([]BatchResult, error)

	// Delete removes a document. It returns ErrConflict on a stale rev.
	Delete(ctx context.Context, id, rev string) error

	// Query executes a view.
	Query(ctx context.Context, spec ViewSpec) (ViewResult, error)
}

// Initializer is implemented by stores that need setup before use
// (create directories, create the remote database).
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Watchable is implemented by stores that publish a changes feed.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// LoadResult is one entry of a BulkLoad response.
type LoadResult struct {
	ID  string
	Doc Raw
}

// WriteResult is the acknowledgement of a single write.
type WriteResult struct {
	ID  string
	Rev string
}

// BatchResult is the per-document outcome of a BulkWrite.
type BatchResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok,omitempty"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EventType represents the kind of change seen on the feed.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change in the store.
type Event struct {
	Type      EventType
	ID        string
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return string(e.Type) + " " + e.ID
}
