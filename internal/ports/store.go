package ports

import "context"

// Store is a document-oriented persistence backend with keyed collections.
// All writes are best-effort: an unavailable store degrades to logged no-ops
// at the call sites, never a crash.
type Store interface {
	// Insert adds a document under (collection, key).
	// Returns ErrDuplicateEntry if the key already exists.
	Insert(ctx context.Context, collection, key string, doc interface{}) error

	// Upsert replaces the document under (collection, key), inserting it if
	// absent.
	Upsert(ctx context.Context, collection, key string, doc interface{}) error

	// Query loads the document under (collection, key) into out.
	// Returns ErrNotFound if no such document exists.
	Query(ctx context.Context, collection, key string, out interface{}) error

	// Scan iterates every document in a collection in key order, invoking fn
	// with the key and the raw JSON document. A non-nil error from fn stops
	// the iteration and is returned.
	Scan(ctx context.Context, collection string, fn func(key string, doc []byte) error) error

	// Close releases the underlying connection.
	Close() error
}
