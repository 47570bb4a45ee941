// Package store persists orders, jobs, media files and the notification
// outbox behind database/sql.
//
// SQLite is the default backend; MySQL and PostgreSQL share the same queries
// through a small dialect layer that rebinds placeholders and classifies
// driver errors. Every state change goes through ApplyTransition, which
// applies compare-and-swap updates on the expected current status, inserts
// any new job, and writes outbox messages in a single transaction. A lost
// race surfaces as orders.ErrStaleState.
//
// Schema changes bump schemaVersion in schema.go and edit every file under
// schema/. There are no in-place migrations.
package store
