// Package session tracks the one currently open document: its log, its
// persistence, and the open/close/setCurrent events surrounding tooling
// subscribes to. Multi-document setups compose multiple registries;
// this package deliberately holds at most one live session.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/persist"
)

// sessionSeq is process-wide so ids stay unique even across registries.
var sessionSeq atomic.Int64

// Session couples a document's log with its persistence. Path is the
// path the session was loaded from; empty for an untitled document
// (the Saver's Path follows SaveAs, this one does not).
type Session struct {
	ID    string
	Path  string
	Log   *doclog.Log
	Saver *persist.Saver
}

type EventKind string

const (
	EventOpen       EventKind = "open"
	EventClose      EventKind = "close"
	EventSetCurrent EventKind = "setCurrent"
)

// Event describes a session lifecycle or routing change. Session is
// non-nil only for EventOpen.
type Event struct {
	Kind    EventKind
	ID      string
	Session *Session
}

// Subscription receives registry events. The channel is closed on
// Unsubscribe and when the registry closes.
type Subscription struct {
	Events chan Event
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithSaverOptions sets options passed to every Saver the registry
// constructs.
func WithSaverOptions(opts ...persist.Option) Option {
	return func(r *Registry) { r.saverOpts = opts }
}

// Registry holds the current session and fans lifecycle events out to
// subscribers.
type Registry struct {
	mu        sync.Mutex
	logger    *slog.Logger
	saverOpts []persist.Option
	current   *Session
	subs      []*Subscription
	closed    bool
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the current session, or nil if none is open.
func (r *Registry) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Load opens the document at path, replacing the current session. The
// old session gets a close event and is fully torn down (persistence
// detached before its log closes) before the new one is built, so no
// stale watcher can fire against the new document. An empty path opens
// an untitled document. A read failure other than not-found leaves the
// current session in place.
func (r *Registry) Load(path string) (*Session, error) {
	var (
		text     string
		existing bool
	)
	if path != "" {
		var err error
		text, existing, err = persist.Load(path)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	r.teardownLocked()

	id := fmt.Sprintf("doc-%d", sessionSeq.Add(1))
	log := doclog.New(text, 0)
	s := &Session{
		ID:    id,
		Path:  path,
		Log:   log,
		Saver: persist.New(log, path, existing, r.saverOpts...),
	}
	r.current = s
	r.logger.Info("session opened", "session", id, "path", path)
	r.notifyLocked(Event{Kind: EventOpen, ID: id, Session: s})
	return s, nil
}

// SetCurrent emits a routing signal for id. It has no effect on session
// lifecycle; collaborators use it to switch which view has focus.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if r.current == nil || r.current.ID != id {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	r.notifyLocked(Event{Kind: EventSetCurrent, ID: id})
	return nil
}

// Subscribe registers for registry events. On a closed registry the
// returned subscription's channel is already closed.
func (r *Registry) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &Subscription{Events: make(chan Event, buffer)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(sub.Events)
		return sub
	}
	r.subs = append(r.subs, sub)
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.subs {
		if x == sub {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			close(sub.Events)
			return
		}
	}
}

// Close tears down the current session and closes all subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.teardownLocked()
	r.closed = true
	for _, sub := range r.subs {
		close(sub.Events)
	}
	r.subs = nil
}

// teardownLocked closes the current session, if any: close event first,
// then persistence detached, then the log. Saver.Close unsubscribes
// from the log and drains in-flight writes before returning, so by the
// time the log closes nothing can fire against it.
func (r *Registry) teardownLocked() {
	old := r.current
	if old == nil {
		return
	}
	r.current = nil
	r.notifyLocked(Event{Kind: EventClose, ID: old.ID})
	old.Saver.Close()
	old.Log.Close()
	r.logger.Info("session closed", "session", old.ID)
}

func (r *Registry) notifyLocked(e Event) {
	for _, sub := range r.subs {
		select {
		case sub.Events <- e:
		default:
			r.logger.Warn("dropping session event for slow subscriber",
				"kind", e.Kind, "session", e.ID)
		}
	}
}
