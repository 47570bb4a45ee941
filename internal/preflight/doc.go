// Package preflight provides readiness checks for the filesystem paths,
// database and notification endpoint orderflow depends on.
//
// The daemon runs RunAll at startup and logs each failure; the CLI
// "orderflow doctor" command prints the same results as status lines.
package preflight
