// Package checkpoint saves pagination progress so an interrupted search can
// resume where it stopped.
//
// A checkpoint records the continuation token of the last dispatched page
// together with the running totals of the rule. It is keyed by a hash of
// the query parameters (mode, rule, tag, dates, bucket), saved atomically
// after every page, and deleted once the rule's pagination completes.
//
// Checkpoints are stored in platform-specific data directories unless a
// directory is configured:
//   - Linux: $XDG_DATA_HOME/fasearch/checkpoints/ or ~/.local/share/fasearch/checkpoints/
//   - macOS: ~/Library/Application Support/fasearch/checkpoints/
//   - Windows: %APPDATA%/fasearch/checkpoints/
package checkpoint
