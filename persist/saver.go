package persist

import (
	"log/slog"
	"sync"
	"time"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/doclog"
)

// DefaultDebounce is the quiescence window applied to edits before a
// write is scheduled.
const DefaultDebounce = 1000 * time.Millisecond

// Option configures a Saver.
type Option func(*Saver)

// WithDebounce overrides the quiescence window.
func WithDebounce(d time.Duration) Option {
	return func(s *Saver) { s.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Saver) { s.logger = l }
}

// WithErrorFunc sets the callback invoked when a write fails outright.
// The default logs the error.
func WithErrorFunc(fn func(error)) Option {
	return func(s *Saver) { s.errFn = fn }
}

// SavedSub receives saved-state transitions from a Saver. Events is
// coalescing: if the consumer lags, only the latest value is retained.
type SavedSub struct {
	Events chan bool
}

// Saver wires a doclog.Log to a file on disk with debounced, coalesced
// writes and saved-state tracking.
type Saver struct {
	log *doclog.Log
	sub *doclog.Subscription

	mu          sync.Mutex
	path        string
	gen         int64 // bumped on SaveAs; in-flight writes for older gens are discarded
	current     string
	lastWritten *string
	pending     *string
	writing     bool
	saved       bool
	closed      bool
	timer       *time.Timer

	debounce time.Duration
	writeFn  func(path, text string) error
	errFn    func(error)
	logger   *slog.Logger
	savedSub []*SavedSub

	wg sync.WaitGroup
}

// New attaches a Saver to log, targeting path. existing reports whether
// the file was present when the log's initial text was loaded (see Load):
// if so, the initial text is treated as already durable and saved starts
// true; otherwise the document starts unsaved. The first observed text
// never triggers a write. An empty path means an untitled document: no
// write is scheduled until SaveAs gives it one.
func New(log *doclog.Log, path string, existing bool, opts ...Option) *Saver {
	s := &Saver{
		log:      log,
		path:     path,
		debounce: DefaultDebounce,
		writeFn:  WriteFileAtomic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Subscribe before reading the text so no commit lands between the two.
	s.sub = log.Subscribe(0)
	s.current = log.Text()
	if existing {
		lw := s.current
		s.lastWritten = &lw
		s.saved = true
	}
	s.wg.Add(1)
	go s.consume()
	return s
}

// Saved reports whether the current materialized text equals the last
// durably written content.
func (s *Saver) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Path returns the current target path.
func (s *Saver) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SubscribeSaved registers for saved-state transitions.
func (s *Saver) SubscribeSaved(buffer int) *SavedSub {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &SavedSub{Events: make(chan bool, buffer)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedSub = append(s.savedSub, sub)
	return sub
}

// UnsubscribeSaved removes a saved-state subscription.
func (s *Saver) UnsubscribeSaved(sub *SavedSub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.savedSub {
		if x == sub {
			s.savedSub = append(s.savedSub[:i], s.savedSub[i+1:]...)
			close(sub.Events)
			return
		}
	}
}

// SaveAs switches the target path, marks the document unsaved, and
// restarts the debounce/coalescing machinery against the new path. An
// in-flight write to the old path is discarded on completion, never
// recorded as durable state for the new one.
func (s *Saver) SaveAs(newPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.path = newPath
	s.gen++
	s.lastWritten = nil
	s.pending = nil
	s.setSavedLocked(false)
	s.resetTimerLocked()
}

// Close detaches the Saver from its log and waits for in-flight work.
// No write is scheduled after Close returns.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.log.Unsubscribe(s.sub)
	s.wg.Wait()

	s.mu.Lock()
	for _, sub := range s.savedSub {
		close(sub.Events)
	}
	s.savedSub = nil
	s.mu.Unlock()
}

// consume observes the log's commit stream until unsubscribed.
func (s *Saver) consume() {
	defer s.wg.Done()
	for c := range s.sub.Commits {
		s.observe(c.Text)
	}
	if s.sub.IsFailed() {
		s.logger.Error("saver fell behind the log's commit stream", "path", s.Path())
	}
}

func (s *Saver) observe(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.current = text
	if s.lastWritten != nil && *s.lastWritten == text {
		// Back to durable content (e.g. an undo); nothing to write.
		s.setSavedLocked(true)
		if s.timer != nil {
			s.timer.Stop()
		}
		return
	}
	s.setSavedLocked(false)
	s.resetTimerLocked()
}

func (s *Saver) resetTimerLocked() {
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flush)
		return
	}
	s.timer.Reset(s.debounce)
}

// flush runs on debounce expiry: the document went quiet, request a write
// of the latest text.
func (s *Saver) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.path == "" {
		// Untitled document: nothing to write until SaveAs names a target.
		return
	}
	text := s.current
	if s.lastWritten != nil && *s.lastWritten == text {
		return
	}
	if s.writing {
		s.pending = &text
		return
	}
	s.writing = true
	s.wg.Add(1)
	go s.writeLoop(text)
}

// writeLoop performs writes until the text that finishes writing equals
// the latest pending value. At most one writeLoop runs at a time.
func (s *Saver) writeLoop(text string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		path, gen := s.path, s.gen
		s.mu.Unlock()

		if debug.Persist() {
			debug.Logf("persist %s: writing %d bytes\n", path, len(text))
		}
		err := s.writeFn(path, text)

		s.mu.Lock()
		if err != nil {
			s.writing = false
			s.pending = nil
			fn := s.errFn
			s.mu.Unlock()
			if fn != nil {
				fn(err)
			} else {
				s.logger.Error("write failed", "path", path, "error", err)
			}
			return
		}
		if gen != s.gen {
			// Path switched mid-write; the completed write targeted the
			// old path and must not count. Start over against the new one.
			if s.closed {
				s.writing = false
				s.mu.Unlock()
				return
			}
			text = s.current
			s.pending = nil
			s.mu.Unlock()
			continue
		}
		lw := text
		s.lastWritten = &lw
		if !s.closed && s.pending != nil && *s.pending != text {
			text = *s.pending
			s.pending = nil
			s.mu.Unlock()
			continue
		}
		s.pending = nil
		s.writing = false
		// The text may have changed again during the write.
		s.setSavedLocked(s.current == text)
		s.mu.Unlock()
		return
	}
}

// setSavedLocked updates saved and notifies subscribers on transitions.
func (s *Saver) setSavedLocked(v bool) {
	if s.saved == v {
		return
	}
	s.saved = v
	for _, sub := range s.savedSub {
		select {
		case sub.Events <- v:
		default:
			// Coalesce: drop the stale value, keep the latest.
			select {
			case <-sub.Events:
			default:
			}
			sub.Events <- v
		}
	}
}
