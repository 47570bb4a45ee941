// Package quality decides whether submitted work can complete automatically.
//
// QC submissions are scored by a Scorer and diverted to manual approval when
// the score falls below the configured threshold. FINALIZE submissions are
// checked structurally against the owner's deliverable policy.
package quality
