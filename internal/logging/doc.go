// Package logging assembles structured slog loggers and formatting helpers used
// across orderflow services.
//
// It owns the console and JSON handlers, tees daemon output into a JSON log
// file, and exposes context-aware helpers so engine code can tag log lines
// with order IDs, worker IDs, and correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
