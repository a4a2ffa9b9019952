// Package api defines the wire protocol for the syncd server.
//
// Messages are JSON-RPC 2.0 over a framed stream. Clients open a
// document, receive its current state plus any updates they missed,
// then exchange appends and server-pushed update notifications.
//
// # Related Packages
//
//   - github.com/signadot/docsync/system/syncd/server - Server implementation
//   - github.com/signadot/docsync/syncer/rpctransport - Client transport
package api
