// Package transport executes logical RPC calls against the FinSync backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Caller interface): one
//     method per call shape, Call for standard requests and CallLongPoll for
//     the long-blocking delta fetch.
//  2. A concrete HTTP implementation (see Client) that posts a single JSON
//     envelope {request_type, json_data, session_id}, carries the static
//     auth headers plus the per-user API key, retries transient network
//     failures with a fixed backoff, and maps status codes to sentinel
//     errors.
//  3. Observability hooks: a NetworkClock told about every successful
//     response (drives the cold-start-sync decision) and a SlowFunc fired
//     when a call exceeds the spinner/slow-network thresholds.
//
// # Error Handling
//
// Callers match conditions with errors.Is/errors.As: common.ErrConnection
// (retries exhausted), common.ErrTaskCancelled (caller cancelled),
// common.ErrSession (client not configured), common.ErrAccessRevoked (401),
// common.ErrIncorrectCredentials (403), and *ServerError for any response
// without a decodable JSON body.
//
// # Concurrency & Contexts
//
// Client is safe for concurrent use. All operations accept context.Context
// and honor cancellation; a cancelled call performs no further retries.
package transport
