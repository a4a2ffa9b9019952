// Package change provides the composable text change description used
// throughout docsync.
//
// # Usage
//
//	// Compute the change between two texts
//	c := change.Make(oldText, newText)
//
//	// Apply a change
//	patched, err := c.Apply(oldText)
//
// Changes serialize to the diff-match-patch patch text format so they can
// be stored, transmitted, and applied to reconstruct document states.
//
// # Related Packages
//
//   - github.com/signadot/docsync/doclog - versioned update log over changes
package change
