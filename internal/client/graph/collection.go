// Package graph owns the in-memory collections of synchronized entities.
//
// # Overview
//
// A Collection is an insertion-ordered, identity-unique container for one
// entity kind. Collections are owned exclusively by the Graph; no other
// component mutates one directly. All writes arrive through the reconciler
// (Merge/Delete/Replace) or the edit controller's commit path (Update/Upsert/
// Rekey).
//
// # Concurrency
//
// Every collection mutation runs under the collection's write lock, so
// upserts, deletes and shadow restores never interleave destructively.
// Readers either take the read lock (Get, Len) or receive cloned snapshots
// (Snapshot), never references that can observe a torn intermediate state.
package graph

import (
	"sync"

	"github.com/dpetrovs/finsync/internal/client/models"
)

// Collection stores entities of one kind keyed by id, preserving insertion
// order for stable rendering.
type Collection[T models.Record[T]] struct {
	name models.Kind

	mu    sync.RWMutex
	order []string
	items map[string]T
}

func NewCollection[T models.Record[T]](name models.Kind) *Collection[T] {
	return &Collection[T]{
		name:  name,
		items: make(map[string]T),
	}
}

// Name returns the wire/cache name of the collection.
func (c *Collection[T]) Name() models.Kind {
	return c.name
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get returns the live entity for id. The caller must only mutate it through
// Update or the edit controller; for rendering use Snapshot.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	return e, ok
}

// Snapshot returns clones of all entities in insertion order. The result is
// safe to hand to the presentation layer.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]T, 0, len(c.order))
	for _, id := range c.order {
		if e, ok := c.items[id]; ok {
			result = append(result, e.Clone())
		}
	}
	return result
}

// Upsert inserts e keyed by its id, or replaces an existing entry wholesale.
// Never creates duplicates.
func (c *Collection[T]) Upsert(e T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(e)
}

func (c *Collection[T]) upsertLocked(e T) {
	id := e.EntityID()
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = e
}

// Delete removes the entity with the given id. Reports whether it existed.
func (c *Collection[T]) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(id)
}

func (c *Collection[T]) deleteLocked(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Update runs fn on the stored entity under the write lock. Reports whether
// the entity exists.
func (c *Collection[T]) Update(id string, fn func(e T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[id]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Merge inserts incoming when no entity with its id exists, otherwise runs
// merge(existing, incoming) on the stored entity. The whole operation is one
// critical section, so a concurrent commit can neither duplicate the record
// nor observe a half-applied merge.
func (c *Collection[T]) Merge(incoming T, merge func(existing, incoming T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.items[incoming.EntityID()]
	if !ok {
		c.upsertLocked(incoming)
		return
	}
	merge(existing, incoming)
}

// Rekey moves the entity stored under oldID to newID, preserving its
// position in insertion order. Used for temporary-id promotion after a
// successful commit: the temp-keyed entry is removed and the entity
// reinserted under the server id in the same critical section, so lookups
// never see both. Reports whether oldID existed.
func (c *Collection[T]) Rekey(oldID, newID string) bool {
	if oldID == newID {
		_, ok := c.Get(oldID)
		return ok
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[oldID]
	if !ok {
		return false
	}
	delete(c.items, oldID)
	e.SetEntityID(newID)
	c.items[newID] = e
	for i, oid := range c.order {
		if oid == oldID {
			c.order[i] = newID
			break
		}
	}
	return true
}

// Replace swaps the whole collection contents, used when loading a cache
// snapshot at cold start. Entities are stored as given, in slice order.
func (c *Collection[T]) Replace(all []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = c.order[:0]
	c.items = make(map[string]T, len(all))
	for _, e := range all {
		c.upsertLocked(e)
	}
}
