package doclog

import "errors"

// ErrVersionConflict indicates an append with a stale or future version.
// The caller must resync before retrying.
var ErrVersionConflict = errors.New("update version does not match log version")

// ErrLogClosed indicates a mutation attempted on a destroyed log.
var ErrLogClosed = errors.New("log is closed")
