// Package escalation moves long-unclaimed orders to screening.
//
// A run buckets every ready order that never had a worker by how long it
// has waited, transitions each bucketed order to SUBMITTED_FOR_SCREENING,
// and queues one digest for operations.
package escalation
