// Command orderflow runs the order workflow daemon and exposes worker,
// operator and maintenance operations on the command line.
//
// Commands work directly against the configured database, so they are
// usable whether or not the daemon is running. Sweeps share the daemon's
// sweep lock and never overlap with its scheduler loops.
package main
