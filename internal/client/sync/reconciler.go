package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dpetrovs/finsync/internal/client/graph"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/logging"
)

// WatermarkStore persists the delta cursor so a reconnect resumes from the
// right point instead of re-fetching a full snapshot.
type WatermarkStore interface {
	Watermark(ctx context.Context) (int64, error)
	SetWatermark(ctx context.Context, t int64) error
}

// Batch is one decoded server delta: the terminal watermark plus zero or
// more raw record arrays keyed by collection name.
type Batch struct {
	ReturnTime int64
	Sets       map[string][]json.RawMessage
}

// ParseBatch decodes a long-poll (or full-fetch) response body. Every
// top-level array-valued key is treated as a collection delta; return_time
// carries the new watermark.
func ParseBatch(raw json.RawMessage) (Batch, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}

	b := Batch{Sets: make(map[string][]json.RawMessage)}
	for key, value := range top {
		if key == "return_time" {
			if err := json.Unmarshal(value, &b.ReturnTime); err != nil {
				return Batch{}, fmt.Errorf("decode return_time: %w", err)
			}
			continue
		}
		var records []json.RawMessage
		if err := json.Unmarshal(value, &records); err != nil {
			// Non-array keys (device echo fields etc.) are not deltas.
			continue
		}
		b.Sets[key] = records
	}
	return b, nil
}

// applier is the untyped face of a collection binding.
type applier interface {
	apply(ctx context.Context, records []json.RawMessage)
}

// Reconciler applies batches into the entity graph, respecting active edits,
// and records the batch's terminal watermark after all records are applied.
type Reconciler struct {
	appliers map[string]applier
	marks    WatermarkStore
	log      logging.Logger
}

func NewReconciler(marks WatermarkStore, log logging.Logger) *Reconciler {
	return &Reconciler{
		appliers: make(map[string]applier),
		marks:    marks,
		log:      log,
	}
}

// Bind registers a collection with the reconciler. editing reports whether
// an entity currently has an open shadow copy; nil means no edits ever.
func Bind[E any, PT interface {
	models.Record[PT]
	*E
}](r *Reconciler, col *graph.Collection[PT], editing func(id string) bool) {
	r.appliers[string(col.Name())] = &binding[E, PT]{
		col:     col,
		editing: editing,
		log:     r.log.With("collection", string(col.Name())),
	}
}

// ApplyBatch merges every record set of the batch into its collection, then
// persists the batch watermark. The returned error only ever concerns
// watermark persistence; record-level problems are logged and dropped.
func (r *Reconciler) ApplyBatch(ctx context.Context, b Batch) error {
	names := make([]string, 0, len(b.Sets))
	for name := range b.Sets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a, ok := r.appliers[name]
		if !ok {
			r.log.Warn(ctx, "delta for unknown collection dropped", "collection", name, "records", len(b.Sets[name]))
			continue
		}
		a.apply(ctx, b.Sets[name])
	}

	if b.ReturnTime == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := r.marks.SetWatermark(ctx, b.ReturnTime); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}
	return nil
}

type binding[E any, PT interface {
	models.Record[PT]
	*E
}] struct {
	col     *graph.Collection[PT]
	editing func(id string) bool
	log     logging.Logger
}

func (b *binding[E, PT]) apply(ctx context.Context, raws []json.RawMessage) {
	records := make([]PT, 0, len(raws))
	for _, raw := range raws {
		var e E
		rec := PT(&e)
		if err := json.Unmarshal(raw, rec); err != nil {
			b.log.Warn(ctx, "malformed record dropped", "err", err)
			continue
		}
		if rec.EntityID() == "" {
			b.log.Warn(ctx, "record without id dropped")
			continue
		}
		records = append(records, rec)
	}

	// Same-id records must apply in updated_at order, not arrival order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastUpdated() < records[j].LastUpdated()
	})

	for _, rec := range records {
		b.applyOne(rec)
	}
}

func (b *binding[E, PT]) applyOne(rec PT) {
	id := rec.EntityID()

	if !rec.IsActive() {
		b.col.Delete(id)
		return
	}

	// Server records carry no local intent.
	rec.SetPendingAction(models.ActionNone)
	rec.SetLocal(false)

	// Edit state is resolved before Merge takes the collection lock:
	// Editing acquires the controller mutex, which the commit path holds
	// while locking the collection. Lock order is controller then
	// collection on every path.
	underEdit := b.editing != nil && b.editing(id)

	b.col.Merge(rec, func(existing, incoming PT) {
		if incoming.LastUpdated() < existing.LastUpdated() {
			// Stale record, dropped.
			return
		}
		if underEdit {
			// The entity is under edit: apply only metadata, never the
			// user-facing fields the shadow copy protects.
			existing.SetLastUpdated(incoming.LastUpdated())
			existing.SetActive(incoming.IsActive())
			return
		}
		existing.RestoreFrom(incoming)
	})
}
