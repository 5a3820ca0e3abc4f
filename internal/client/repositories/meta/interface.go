// Package meta provides the client-side persistence layer for session
// bookkeeping: the sync watermark, the last successful network time, the
// device identity and the cache epoch.
//
// The Repository interface is a small key-value contract; SQLiteRepository
// implements it over a dbx.DBTX. The typed accessors in store.go sit on top
// of the raw contract and are what the rest of the engine uses.
package meta

import "context"

// Repository describes raw key-value operations on the meta table.
type Repository interface {
	// Get returns the stored value for key, or nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Clear removes all keys; used when the server invalidates the session.
	Clear(ctx context.Context) error
}
