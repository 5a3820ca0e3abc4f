// Package models defines the synchronized financial entity types and the
// bookkeeping fields every entity carries for reconciliation.
package models

import "github.com/google/uuid"

// Action is the local mutation intent attached to an entity before a commit.
// It is cleared after the server acknowledges the mutation and is ignored on
// records arriving from the server.
type Action string

const (
	ActionNone   Action = ""
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Kind names an entity collection on the wire and in the cache.
type Kind string

const (
	KindTransaction    Kind = "transactions"
	KindCategory       Kind = "categories"
	KindPaymentMethod  Kind = "payment_methods"
	KindLocation       Kind = "locations"
	KindStartingAmount Kind = "starting_amounts"
	KindBudget         Kind = "budgets"
)

// Meta holds the synchronization envelope embedded in every entity.
//
// ID is assigned by the server once the entity is persisted; before the first
// successful commit a locally generated UUID is used and Local is true.
// UpdatedAt is the server-stamped timestamp used as the last-write-wins
// tie-breaker. Active is a soft-delete flag: inactive records arriving as
// deltas mean "remove locally".
type Meta struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
	Active    bool   `json:"active"`
	Action    Action `json:"action,omitempty"`
	Local     bool   `json:"-"`
}

// NewMeta returns the envelope for a freshly created, not-yet-committed
// entity: a temporary UUID id, active, marked local.
func NewMeta() Meta {
	return Meta{ID: uuid.NewString(), Active: true, Local: true}
}

func (m *Meta) EntityID() string            { return m.ID }
func (m *Meta) SetEntityID(id string)       { m.ID = id }
func (m *Meta) LastUpdated() int64          { return m.UpdatedAt }
func (m *Meta) SetLastUpdated(t int64)      { m.UpdatedAt = t }
func (m *Meta) IsActive() bool              { return m.Active }
func (m *Meta) SetActive(active bool)       { m.Active = active }
func (m *Meta) PendingAction() Action       { return m.Action }
func (m *Meta) SetPendingAction(a Action)   { m.Action = a }
func (m *Meta) IsLocal() bool               { return m.Local }
func (m *Meta) SetLocal(local bool)         { m.Local = local }

// Record is the constraint every synchronized entity satisfies. The type
// parameter is the entity's own pointer type, so Clone and RestoreFrom stay
// fully typed.
//
// Clone returns a deep point-in-time copy; it backs both shadow copies and
// read snapshots handed to the presentation layer. RestoreFrom replaces all
// fields wholesale from another copy; the edit controller uses it for cancel
// and the reconciler for full overwrites.
type Record[T any] interface {
	EntityID() string
	SetEntityID(id string)
	LastUpdated() int64
	SetLastUpdated(t int64)
	IsActive() bool
	SetActive(active bool)
	PendingAction() Action
	SetPendingAction(a Action)
	IsLocal() bool
	SetLocal(local bool)
	Clone() T
	RestoreFrom(T)
}
