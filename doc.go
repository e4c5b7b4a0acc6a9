// Package keyturn implements a credential-rotation workflow: session-backed
// login, a sliding-window abuse throttle keyed by network origin and by
// principal, a durable append-only audit trail, and a fixed-order state
// machine for rotating a principal's secret.
//
// The package is designed for concurrent server workloads: Workflow methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// keyturn is the public surface. It exposes [Workflow], [Builder], [Config],
// the [CredentialStore] and [AuditLog] integration interfaces, and the audit
// sink types. Rate limiting, token generation, and metric storage live under
// internal/ and are never exported. Secret hashing ([secret]), session
// persistence ([session]), and the Postgres repositories ([pgstore]) are
// exported subpackages so callers can wire or replace them.
//
// # What this package must NOT do
//
//   - Persist or log a raw secret; only argon2id hashes leave the call stack.
//   - Retry store failures; a backend fault surfaces to the caller unchanged.
//   - Render HTML, deliver reset links, or terminate TLS. The surrounding
//     web layer owns everything outside the workflow boundary.
package keyturn
