// Package edit implements the shadow-copy edit lifecycle: begin an edit,
// mutate the live entity optimistically, then commit to the server or cancel
// and restore the pre-edit state.
//
// One generic Controller covers every entity kind, so the "skip fields under
// edit" reconciliation rule has a single enforcement point instead of
// per-type deep-copy/restore pairs.
package edit

import (
	"context"
	"fmt"
	"sync"

	"github.com/dpetrovs/finsync/internal/client/graph"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/client/transport"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
)

// commitAck is the server's acknowledgment of one committed mutation.
type commitAck struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

// Controller gives the presentation layer begin/commit/cancel semantics for
// editing entities of one collection without corrupting the shared graph
// mid-edit.
//
// At most one shadow copy exists per entity. Lock order is always controller
// then collection, never the reverse.
type Controller[T models.Record[T]] struct {
	col     *graph.Collection[T]
	rpc     transport.Caller
	reqType string
	log     logging.Logger

	mu      sync.Mutex
	shadows map[string]T
}

func NewController[T models.Record[T]](col *graph.Collection[T], rpc transport.Caller, log logging.Logger) *Controller[T] {
	return &Controller[T]{
		col:     col,
		rpc:     rpc,
		reqType: "save_" + string(col.Name()),
		log:     log.With("collection", string(col.Name())),
		shadows: make(map[string]T),
	}
}

// BeginEdit captures a shadow copy of e. Calling it again while an edit is
// open replaces the shadow: restart-edit semantics, not a stacked undo.
func (c *Controller[T]) BeginEdit(e T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shadows[e.EntityID()] = e.Clone()
}

// Editing reports whether the entity currently has an open shadow copy.
func (c *Controller[T]) Editing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.shadows[id]
	return ok
}

// Cancel restores all fields from the shadow copy and discards it. No
// network call is made. A cancel without an open edit is a no-op.
func (c *Controller[T]) Cancel(e T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := e.EntityID()
	shadow, ok := c.shadows[id]
	if !ok {
		return
	}
	delete(c.shadows, id)

	if restored := c.col.Update(id, func(live T) { live.RestoreFrom(shadow) }); !restored {
		// Entity was never inserted (a brand-new record edited in place).
		e.RestoreFrom(shadow)
	}
}

// Commit marks the entity's action, sends the mutation, and on success
// discards the shadow, promotes a temporary id to the server-assigned one
// and stamps updated_at from the acknowledgment.
//
// On failure the entity's in-memory state is left unchanged: the optimistic
// mutation stays visible and the shadow stays open, so the caller decides
// whether to retry or cancel.
func (c *Controller[T]) Commit(ctx context.Context, e T) error {
	action := e.PendingAction()
	if action != models.ActionDelete {
		if e.IsLocal() {
			action = models.ActionAdd
		} else {
			action = models.ActionEdit
		}
	}
	e.SetPendingAction(action)

	raw, err := c.rpc.Call(ctx, c.reqType, e)
	if err != nil {
		return fmt.Errorf("commit %s: %w", e.EntityID(), err)
	}
	ack, err := transport.Decode[commitAck](raw)
	if err != nil {
		return fmt.Errorf("commit %s: %w", e.EntityID(), err)
	}

	// Cancellation is checked before the mutation commit point, never
	// mid-mutation.
	if ctx.Err() != nil {
		return fmt.Errorf("commit %s: %w", e.EntityID(), common.ErrTaskCancelled)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldID := e.EntityID()
	delete(c.shadows, oldID)

	if action == models.ActionDelete {
		e.SetActive(false)
		e.SetPendingAction(models.ActionNone)
		c.col.Delete(oldID)
		c.log.Debug(ctx, "delete committed", "id", oldID)
		return nil
	}

	serverID := ack.ID
	if serverID == "" {
		serverID = oldID
	}

	stamp := func(live T) {
		live.SetLastUpdated(ack.UpdatedAt)
		live.SetLocal(false)
		live.SetPendingAction(models.ActionNone)
	}

	if c.col.Rekey(oldID, serverID) {
		c.col.Update(serverID, stamp)
	} else {
		e.SetEntityID(serverID)
		stamp(e)
		c.col.Upsert(e)
	}

	c.log.Debug(ctx, "commit acknowledged", "id", serverID, "updated_at", ack.UpdatedAt)
	return nil
}
