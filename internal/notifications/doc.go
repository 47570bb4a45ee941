// Package notifications delivers workflow messages to workers and operators.
//
// Engine operations never send directly. They enqueue Messages into the
// store's outbox inside the transaction that changed state, and the
// Dispatcher drains the outbox through a Service (ntfy, JSON webhook, or a
// no-op when no endpoint is configured), retrying with exponential backoff
// until a message is sent or parked after the configured attempt limit.
//
// Templates form a closed set; building a message for an unknown template
// fails.
package notifications
