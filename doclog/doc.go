// Package doclog implements the authoritative, append-only, version-indexed
// update log for a single text document.
//
// The log is the only mutable shared state in docsync. It is mutated
// exclusively through the gated Append, which accepts an update iff the
// update's version equals the log's current version (compare-and-append).
// Accepted updates are observed by all subscribers in append order.
package doclog
