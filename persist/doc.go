// Package persist keeps a file on disk eventually consistent with a
// doclog.Log's materialized text, without performing a write per keystroke.
//
// A Saver subscribes to the log's commit stream. Edits are collapsed by a
// fixed quiescence window (debounce), and at most one write is in flight at
// a time: while a write runs, only the most recent requested text is
// remembered and written next. The final state is therefore always
// eventually durable while intermediate values may never touch disk.
//
// Writes go to a temp file in the target directory followed by an atomic
// rename, so a crash mid-write never leaves a partially written document.
package persist
