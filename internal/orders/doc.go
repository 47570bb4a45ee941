// Package orders defines the order and job-assignment domain shared by the
// workflow engine.
//
// It owns the closed enumerations for order status, order type, stage, job
// status and assignment mode, together with the state machine that decides
// which status edges are legal, which status a stage is ready from, and
// where an abandoned assignment reverts to. The package also carries the
// classified error sentinels every engine component returns, so transports
// can map failures without string matching.
//
// Nothing here touches storage; the store and the assignment manager consult
// these tables before issuing compare-and-swap updates.
package orders
