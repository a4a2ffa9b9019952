package api

import (
	"github.com/signadot/docsync/doclog"
)

// Session protocol message types for bidirectional communication.
//
// Requests (client → server) carry ids and get responses; the server
// additionally pushes MethodUpdate notifications for every accepted
// append on documents the client has opened.

// Method names.
const (
	MethodHello  = "hello"
	MethodOpen   = "doc/open"
	MethodAppend = "doc/append"
	MethodUpdate = "doc/update" // notification, server → client
)

// --- Client → Server Messages ---

// HelloParams is the initial handshake message from client to server.
type HelloParams struct {
	ClientID string `json:"clientId"`
}

// HelloResult is the server's response to a hello.
type HelloResult struct {
	ServerID string `json:"serverId"`
}

// OpenParams opens a named document, creating it if absent. If
// FromVersion is set, the response carries the updates accepted at or
// after that version so a reconnecting client can catch up.
type OpenParams struct {
	Doc         string `json:"doc"`
	FromVersion *int64 `json:"fromVersion,omitempty"`
}

// OpenResult is the document's state at open time. Updates is the
// catch-up slice requested via FromVersion, in version order.
type OpenResult struct {
	Doc     string          `json:"doc"`
	Version int64           `json:"version"`
	Text    string          `json:"text"`
	Updates []doclog.Update `json:"updates,omitempty"`
}

// AppendParams proposes an update for a document. The update's version
// must equal the document's current version or the call fails with the
// conflict code.
type AppendParams struct {
	Doc    string        `json:"doc"`
	Update doclog.Update `json:"update"`
}

// AppendResult acknowledges an accepted append.
type AppendResult struct {
	Version int64 `json:"version"` // the document's version after the append
}

// --- Server → Client Messages ---

// UpdateEvent is the notification pushed for every accepted append on
// an open document, including the client's own.
type UpdateEvent struct {
	Doc    string        `json:"doc"`
	Update doclog.Update `json:"update"`
}
