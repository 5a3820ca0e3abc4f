// Package cache provides the durable on-disk snapshot store for entity
// collections, used at cold start and as the offline fallback when the
// server is unreachable.
//
// Each collection is one JSON array file under the store directory, written
// with temp-then-rename semantics so a crash mid-write never corrupts the
// previous snapshot. A missing or corrupt file is treated as "no cache",
// not a fatal error.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/filex"
)

// Store persists collection snapshots under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// SaveMany atomically overwrites the snapshot file for collection. A failed
// save leaves the previous snapshot intact.
func SaveMany[T any](s *Store, collection string, entities []T) error {
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", collection, err)
	}
	if err := filex.WriteAtomic(s.path(collection), data, 0o660); err != nil {
		return fmt.Errorf("save %s snapshot: %w", collection, err)
	}
	return nil
}

// LoadMany returns the last successfully saved snapshot for collection.
// Missing and corrupt files both report common.ErrNoCache.
func LoadMany[T any](s *Store, collection string) ([]T, error) {
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNoCache
		}
		return nil, fmt.Errorf("read %s snapshot: %w", collection, err)
	}

	var entities []T
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s snapshot: %s", common.ErrNoCache, collection, err)
	}
	return entities, nil
}

// Delete removes the snapshot file for collection, used when the server
// signals that the cache epoch is invalid and a fresh full fetch must occur.
// Deleting an absent snapshot is a no-op.
func (s *Store) Delete(collection string) error {
	err := os.Remove(s.path(collection))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s snapshot: %w", collection, err)
	}
	return nil
}
