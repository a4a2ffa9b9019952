// Package syncer reconciles one editor's local optimistic state with an
// authoritative doclog over an asynchronous transport.
//
// The client sends at most one local change at a time, tagged with the
// version it expects the authoritative log to be at. Remote updates may
// arrive out of order; they are buffered by version and applied in strict
// version order, never applying N+1 before N. Updates originated by the
// client itself are discarded unapplied but still advance version
// bookkeeping.
//
// Rebasing a rejected local change over the remote updates that beat it is
// delegated to a Rebaser capability; the client only decides when a retry
// happens (after the gap is closed) and that one send is in flight at a
// time.
package syncer
