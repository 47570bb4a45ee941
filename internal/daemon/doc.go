// Package daemon runs orderflow as a long-lived process.
//
// It takes a flock so only one daemon serves a data directory, drives the
// timeout reaper, escalation monitor and outbox dispatcher on fixed
// intervals, and serves the HTTP API. Every loop goes through api.Service,
// which serializes sweeps with the CLI through the sweep lock.
//
// Keep orchestration here; engine behavior belongs in the assignment,
// reaper, escalation and notifications packages.
package daemon
