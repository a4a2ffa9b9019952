package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/signadot/docsync/change"
	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/doclog"
)

// Option configures a Client.
type Option func(*Client)

// WithRebaser sets the rebase capability. Default is FuzzyRebase.
func WithRebaser(r Rebaser) Option {
	return func(c *Client) { c.rebaser = r }
}

// WithEffectSink sets the consumer for side-effect tags on remote updates.
func WithEffectSink(s EffectSink) Option {
	return func(c *Client) { c.effects = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type queued struct {
	changes change.Change
	effects []doclog.Effect
}

// Client is the per-connection sync actor. It proposes local changes
// against the version it believes the authoritative log is at, and folds
// accepted updates (remote and its own) into the local log in strict
// version order.
//
// The local log is the client's replica of the authoritative baseline;
// the client is its only writer.
type Client struct {
	id        string
	transport Transport
	local     *doclog.Log
	rebaser   Rebaser
	effects   EffectSink
	logger    *slog.Logger

	mu         sync.Mutex
	expected   int64 // next authoritative version this client expects
	buffer     map[int64]doclog.Update
	queue      []queued // local changes not yet confirmed, oldest first
	inFlight   bool
	conflicted bool  // last send was rejected; waiting for the gap to close
	conflictAt int64 // version the rejected send claimed
	closed     bool
	err        error // permanent failure, set once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Client identified by id, reconciling local against the
// authoritative log behind transport. The client starts consuming the
// transport's update stream immediately.
func New(id string, transport Transport, local *doclog.Log, opts ...Option) *Client {
	c := &Client{
		id:        id,
		transport: transport,
		local:     local,
		rebaser:   FuzzyRebase,
		logger:    slog.Default(),
		buffer:    make(map[int64]doclog.Update),
		expected:  local.Version(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("client", id)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.run()
	return c
}

// ID returns the client's origin identifier.
func (c *Client) ID() string {
	return c.id
}

// Expected returns the next authoritative version the client expects.
func (c *Client) Expected() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expected
}

// Pending returns the number of local changes not yet confirmed.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Err returns the error that permanently stopped the client, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Propose queues a local change for sending. Changes are sent one at a
// time, oldest first, each tagged with the expected next version.
func (c *Client) Propose(ch change.Change, effects ...doclog.Effect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("propose: %w", doclog.ErrLogClosed)
	}
	c.queue = append(c.queue, queued{changes: ch, effects: effects})
	c.maybeSendLocked()
	return nil
}

// Close stops the client. It does not close the local log.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

// run consumes the transport's inbound update stream.
func (c *Client) run() {
	defer c.wg.Done()
	updates := c.transport.Updates()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.receive(u)
		case <-c.ctx.Done():
			return
		}
	}
}

// maybeSendLocked starts a send if local changes are waiting, no send is
// in flight, and no conflict gap is open.
func (c *Client) maybeSendLocked() {
	if c.inFlight || c.conflicted || c.closed || len(c.queue) == 0 {
		return
	}
	u := doclog.Update{
		Version: c.expected,
		Changes: c.queue[0].changes,
		Origin:  c.id,
		Effects: c.queue[0].effects,
	}
	c.inFlight = true
	c.wg.Add(1)
	go c.send(u)
}

func (c *Client) send(u doclog.Update) {
	defer c.wg.Done()
	err := c.transport.Send(c.ctx, u)
	if debug.Sync() {
		debug.Logf("sync %s: sent v%d, err=%v\n", c.id, u.Version, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.closed {
		return
	}
	switch {
	case err == nil:
		c.ackLocked(u)
	case errors.Is(err, doclog.ErrVersionConflict):
		// Something else got version u.Version. Hold sends until the
		// missing remote updates arrive and close the gap, then rebase.
		// The winner may have arrived before this rejection did, so
		// re-check the gap right away.
		c.conflicted = true
		c.conflictAt = u.Version
		c.logger.Debug("append rejected, awaiting missed updates", "version", u.Version)
		c.drainLocked()
	default:
		// Transport trouble; the change stays queued and is retried on
		// the next receive or propose.
		c.logger.Warn("send failed", "version", u.Version, "error", err)
	}
	c.maybeSendLocked()
}

// ackLocked confirms the oldest queued change: fold it into the local log
// exactly as if it had been received remotely.
func (c *Client) ackLocked(u doclog.Update) {
	if len(c.queue) > 0 {
		c.queue = c.queue[1:]
	}
	if c.local.Version() == u.Version {
		if err := c.local.Append(u); err != nil {
			c.failLocked(fmt.Errorf("confirmed change %d does not apply: %w", u.Version, err))
			return
		}
	}
	if c.expected == u.Version {
		c.expected = u.Version + 1
	}
	c.drainLocked()
}

// receive handles one remote update, buffering out-of-order arrivals.
func (c *Client) receive(u doclog.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if debug.Sync() {
		debug.Logf("sync %s: recv v%d from %s, expected %d\n", c.id, u.Version, u.Origin, c.expected)
	}
	if c.closed {
		return
	}
	if u.Version < c.expected {
		// Already applied or stale duplicate.
		return
	}
	c.buffer[u.Version] = u
	c.drainLocked()
	c.maybeSendLocked()
}

// drainLocked applies buffered updates in version order, stopping at the
// first gap, then retries a conflicted local change once the gap that
// rejected it has closed.
func (c *Client) drainLocked() {
	for {
		u, ok := c.buffer[c.expected]
		if !ok {
			break
		}
		delete(c.buffer, c.expected)
		if u.Origin == c.id {
			// Our own update echoed back: local state already reflects
			// it from the send path, unless the echo won the race.
			if c.local.Version() == u.Version {
				if err := c.local.Append(u); err != nil {
					c.failLocked(fmt.Errorf("own echoed update %d does not apply: %w", u.Version, err))
					return
				}
			}
		} else {
			if c.local.Version() == u.Version {
				if err := c.local.Append(u); err != nil {
					// The replica has diverged from the authoritative
					// stream; stalling here would only hide it.
					c.failLocked(fmt.Errorf("remote update %d does not apply: %w", u.Version, err))
					return
				}
			}
			if c.effects != nil && len(u.Effects) > 0 {
				c.effects.HandleEffects(u.Version, u.Effects)
			}
		}
		c.expected++
	}

	if c.conflicted && c.expected > c.conflictAt {
		if len(c.queue) > 0 {
			// Everything the local log accepted at or past the rejected
			// version is a concurrent edit the change must carry over,
			// whether it landed before or after the rejection came back.
			var over []change.Change
			for _, m := range c.local.Updates(c.conflictAt) {
				over = append(over, m.Changes)
			}
			rebased, err := c.rebaser.Rebase(c.queue[0].changes, over)
			if err != nil {
				// The change cannot be carried over the concurrent
				// edits; drop it rather than wedge the send path.
				c.logger.Error("rebase failed, dropping local change", "error", err)
				c.queue = c.queue[1:]
			} else {
				c.queue[0].changes = rebased
			}
		}
		c.conflicted = false
	}
}

// failLocked permanently stops the client. Further proposes are refused
// and the failure is reported by Err.
func (c *Client) failLocked(err error) {
	if c.closed {
		return
	}
	c.logger.Error("client failed", "error", err)
	c.closed = true
	c.err = err
	c.cancel()
	go c.transport.Close()
}
