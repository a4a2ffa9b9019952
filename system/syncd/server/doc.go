// Package server implements the syncd server: the authoritative
// version-gated log for each served document, debounced persistence to
// a data directory, and the session protocol over TCP and websocket
// listeners.
package server
