package syncer

import (
	"context"

	"github.com/signadot/docsync/change"
	"github.com/signadot/docsync/doclog"
)

// Transport carries updates between a client and the authoritative log.
//
// Send proposes an update for the gated append; a rejected append must be
// reported with an error matching doclog.ErrVersionConflict. Updates
// delivers remote accepted updates; it makes no ordering guarantee. The
// channel is closed when the transport shuts down.
type Transport interface {
	Send(ctx context.Context, u doclog.Update) error
	Updates() <-chan doclog.Update
	Close() error
}

// Rebaser transforms a local change so it applies after the remote
// changes that were accepted in its place. Implementations come from the
// change-composition layer; the client never resolves conflicts itself.
type Rebaser interface {
	Rebase(local change.Change, over []change.Change) (change.Change, error)
}

// RebaseFunc adapts a function to the Rebaser interface.
type RebaseFunc func(local change.Change, over []change.Change) (change.Change, error)

func (f RebaseFunc) Rebase(local change.Change, over []change.Change) (change.Change, error) {
	return f(local, over)
}

// FuzzyRebase retries the local change unmodified, relying on the
// content anchoring of diff-match-patch hunks to re-locate it in the
// updated text. Suitable when concurrent edits rarely touch the same
// spans.
var FuzzyRebase = RebaseFunc(func(local change.Change, _ []change.Change) (change.Change, error) {
	return local, nil
})

// EffectSink consumes side-effect tags riding on remote updates. Tags are
// delivered in the order of the updates carrying them and are never
// interpreted by the client. Delivery is synchronous: a sink must not call
// back into the Client.
type EffectSink interface {
	HandleEffects(version int64, effects []doclog.Effect)
}

// EffectFunc adapts a function to the EffectSink interface.
type EffectFunc func(version int64, effects []doclog.Effect)

func (f EffectFunc) HandleEffects(version int64, effects []doclog.Effect) {
	f(version, effects)
}
