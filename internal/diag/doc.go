// Package diag turns rewrite results, defects and guard denials into
// diagnostics the CLI can sort, deduplicate and print.
//
// Diagnostic is the central record:
//
//   - Severity: tri-level enum (Info, Warning, Error).
//   - Code: compact numeric identifier with a stable string form.
//   - Message: short and actionable.
//   - Module and Site: where the finding was made.
//   - Notes: optional extra context lines.
//
// Rewritten sites become INFO, tolerated incompatibilities WARNING and
// fatal ones or defects ERROR. Producers emit through a Reporter; Bag is
// the usual sink.
package diag
