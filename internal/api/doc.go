// Package api is the transport-neutral surface of the engine. It converts
// internal order and job models into camelCase DTOs, validates inbound
// requests, and exposes every worker, operator and scheduler operation
// through Service.
//
// # Key Types
//
// Service: wraps the store, assignment manager, reaper, escalation monitor
// and outbox dispatcher. The daemon's HTTP server and the CLI both call it.
//
// Order/Job/OrderDetail: transport representations of persisted records.
//
// ActionResponse: the {success, message} envelope returned by worker and
// operator operations, with the affected order or job attached.
//
// TimeoutSweepResponse/EscalationResponse/DispatchResponse: machine-readable
// scheduler summaries.
//
// # Design Notes
//
// Request DTOs carry validator tags and are checked before reaching the
// engine; failures surface as orders.ErrInvalidRequest. HTTPStatus maps the
// error kinds (not_found, conflict, validation, infrastructure) to
// 404/409/422/500.
//
// Sweeps and outbox drains run under a file lock in the data directory so a
// CLI-triggered sweep never overlaps the daemon's.
package api
