// Package sync merges server-originated change batches into the entity graph
// and keeps them flowing: the Reconciler applies one batch of per-collection
// delta records, and the Subscriber maintains the long-poll loop that
// produces those batches.
//
// # Reconciliation rules
//
// Per incoming record: an inactive record removes the matching entity; an
// unknown id inserts; a known id without an open shadow copy is overwritten
// only when the incoming updated_at is greater than or equal to the local
// one (stale records are dropped, even their metadata); a known id with an
// open shadow copy only receives metadata (updated_at, active) so a push
// from another device never discards unsaved keystrokes on this one. Records for the same id inside a
// batch apply in ascending updated_at order. Applying a batch twice is
// idempotent.
//
// Malformed records are logged and dropped; one bad record never aborts a
// batch.
package sync
