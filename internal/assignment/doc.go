// Package assignment owns every worker-facing and operator-facing change to
// orders and their jobs.
//
// Each operation reads the current order, checks its preconditions, and
// commits one store.Transition: the order status CAS, the job mutation and
// the outbox notifications land together or not at all. Losing a race to
// another writer (for example a submit racing the timeout sweep) surfaces as
// orders.ErrStaleState and leaves state untouched.
//
// Stage completion triggers hand-off: QC on a transcription+formatting order
// assigns REVIEW to the same worker, and FINALIZE moves the order through
// FINALIZING_COMPLETED to PRE_DELIVERED.
package assignment
