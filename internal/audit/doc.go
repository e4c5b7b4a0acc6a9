// Package audit defines the in-process audit event model and the sink
// implementations the workflow dispatcher fans events into.
//
// This feed is telemetry: it observes outcomes but is not the durable audit
// trail. The durable trail is written synchronously by the workflow through
// its AuditLog collaborator and its failures are surfaced to callers.
package audit
