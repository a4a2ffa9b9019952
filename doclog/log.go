package doclog

import (
	"fmt"
	"sync"
	"time"

	"github.com/signadot/docsync/debug"
)

// DefaultSubscribeBuffer is the default buffer size for a subscription's
// Commits channel.
const DefaultSubscribeBuffer = 64

// DefaultNotifyTimeout is the default timeout for delivering a commit to a
// subscriber. If a subscriber doesn't read within this time, the
// subscription is failed.
const DefaultNotifyTimeout = 5 * time.Second

// Commit is what subscribers observe for each accepted update: the full
// update plus the log's materialized text and version after applying it.
type Commit struct {
	Update  Update
	Version int64
	Text    string
}

// Subscription receives commits from a Log in append order.
// If the subscriber can't keep up (Commits channel blocks past the notify
// timeout), the subscription is failed and the Failed channel is closed.
// The Commits channel is closed on Unsubscribe and when the log is closed.
type Subscription struct {
	Commits chan Commit
	Failed  chan struct{}

	failOnce sync.Once
}

// IsFailed reports whether the subscription has failed (slow consumer).
func (s *Subscription) IsFailed() bool {
	select {
	case <-s.Failed:
		return true
	default:
		return false
	}
}

// Log is an append-only, version-indexed sequence of updates over an
// initial text. The current version is initialVersion + number of accepted
// updates. The materialized text is cached and advanced incrementally on
// each accepted append, never recomputed from scratch.
type Log struct {
	mu             sync.Mutex
	initialText    string
	initialVersion int64
	updates        []Update
	text           string
	closed         bool

	subs          []*Subscription
	notifyTimeout time.Duration
}

// New creates a Log holding initial text at the given initial version.
func New(initialText string, initialVersion int64) *Log {
	return &Log{
		initialText:    initialText,
		initialVersion: initialVersion,
		text:           initialText,
		notifyTimeout:  DefaultNotifyTimeout,
	}
}

// Version returns the log's current version.
func (l *Log) Version() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialVersion + int64(len(l.updates))
}

// InitialVersion returns the version the log was created at.
func (l *Log) InitialVersion() int64 {
	return l.initialVersion
}

// Text returns the log's materialized text.
func (l *Log) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Len returns the number of accepted updates.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

// Updates returns a copy of the accepted updates with version >= from.
func (l *Log) Updates(from int64) []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := from - l.initialVersion
	if i < 0 {
		i = 0
	}
	if i >= int64(len(l.updates)) {
		return nil
	}
	out := make([]Update, int64(len(l.updates))-i)
	copy(out, l.updates[i:])
	return out
}

// State returns the current version and materialized text together with
// a copy of the accepted updates with version >= from, as one consistent
// snapshot.
func (l *Log) State(from int64) (version int64, text string, updates []Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	version = l.initialVersion + int64(len(l.updates))
	text = l.text
	i := from - l.initialVersion
	if i < 0 {
		i = 0
	}
	if i < int64(len(l.updates)) {
		updates = make([]Update, int64(len(l.updates))-i)
		copy(updates, l.updates[i:])
	}
	return version, text, updates
}

// Append accepts u iff u.Version equals the log's current version.
// On success the update is applied to the cached text and all subscribers
// are notified, in append order. On version mismatch it returns an error
// matching ErrVersionConflict and the log is unchanged. On a closed log it
// returns ErrLogClosed, distinguishable from a conflict.
func (l *Log) Append(u Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLogClosed
	}
	current := l.initialVersion + int64(len(l.updates))
	if u.Version != current {
		return fmt.Errorf("%w: log at %d, update at %d", ErrVersionConflict, current, u.Version)
	}
	next, err := u.Changes.Apply(l.text)
	if err != nil {
		return fmt.Errorf("update %d does not apply: %w", u.Version, err)
	}
	l.updates = append(l.updates, u)
	l.text = next
	if debug.Log() {
		debug.Logf("log: accepted v%d from %s, %d subscribers\n", u.Version, u.Origin, len(l.subs))
	}
	l.notifyLocked(Commit{Update: u, Version: current + 1, Text: next})
	return nil
}

// notifyLocked delivers a commit to every live subscription. Delivery
// happens under the log's mutex so subscribers observe commits in exactly
// append order. A subscriber that blocks past the notify timeout is failed
// and removed.
func (l *Log) notifyLocked(c Commit) {
	live := l.subs[:0]
	for _, sub := range l.subs {
		if sub.IsFailed() {
			close(sub.Commits)
			continue
		}
		select {
		case sub.Commits <- c:
			live = append(live, sub)
		case <-time.After(l.notifyTimeout):
			sub.failOnce.Do(func() {
				close(sub.Failed)
			})
			close(sub.Commits)
		}
	}
	l.subs = live
}

// Subscribe registers a new subscription with the given Commits buffer
// size (<= 0 means DefaultSubscribeBuffer). Subscribing to a closed log
// returns a subscription whose Commits channel is already closed.
func (l *Log) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscribeBuffer
	}
	sub := &Subscription{
		Commits: make(chan Commit, buffer),
		Failed:  make(chan struct{}),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		close(sub.Commits)
		return sub
	}
	l.subs = append(l.subs, sub)
	return sub
}

// Unsubscribe removes sub and closes its Commits channel. It is a no-op
// for subscriptions not held by the log.
func (l *Log) Unsubscribe(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s == sub {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			close(sub.Commits)
			return
		}
	}
}

// Close terminates the notification stream. Subsequent appends fail with
// ErrLogClosed.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for _, sub := range l.subs {
		close(sub.Commits)
	}
	l.subs = nil
}

// SetNotifyTimeout overrides the slow-subscriber timeout. It must be
// called before the first Append.
func (l *Log) SetNotifyTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifyTimeout = d
}
