// Package reaper enforces assignment SLAs.
//
// A sweep looks at every ACCEPTED job in an SLA-covered stage, computes its
// allowance from the file duration, and either queues a one-time warning as
// the deadline approaches or times the job out and returns the order to the
// queue. Sweeps are safe to repeat: warnings are deduplicated through the
// outbox and timeouts are compare-and-swap transitions.
package reaper
