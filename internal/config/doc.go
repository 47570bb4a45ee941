// Package config loads, normalizes, and validates orderflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ORDERFLOW_STORE_DSN. The Config type centralizes the SLA policy, escalation
// thresholds, work-queue ranking knobs, and deliverable rules the engine
// consults, so every sweep and CLI command reads them in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, folded organization names, and clear validation errors.
package config
