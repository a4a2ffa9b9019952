package server

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/persist"
	"github.com/signadot/docsync/system/syncd/api"
)

// Document is one served document: its authoritative log plus the
// persistence keeping it on disk under the data directory.
type Document struct {
	Name  string
	Log   *doclog.Log
	Saver *persist.Saver
}

// Server represents the syncd server.
type Server struct {
	Spec Spec

	serverID string

	mu     sync.Mutex
	docs   map[string]*Document
	closed bool

	// TCP listener for the session protocol
	tcpListener *TCPListener

	// HTTP server for the websocket endpoint
	httpServer *HTTPServer
}

// New creates a new Server instance.
func New(spec *Spec) *Server {
	if spec.Log == nil {
		spec.Log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(),
		}))
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}

	return &Server{
		Spec:     *spec,
		serverID: uuid.NewString(),
		docs:     make(map[string]*Document),
	}
}

// ServerID returns the server's instance id, minted at startup.
func (s *Server) ServerID() string {
	return s.serverID
}

func (s *Server) debounce() time.Duration {
	if d := time.Duration(s.Spec.Config.Debounce); d > 0 {
		return d
	}
	return persist.DefaultDebounce
}

// validDocName reports whether name is a plain file name: no path
// separators, no traversal.
func validDocName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return true
}

// Doc returns the named document, loading it from the data directory on
// first access. A missing file is a new empty document; any other read
// failure is returned as an io_error.
func (s *Server) Doc(name string) (*Document, error) {
	if !validDocName(name) {
		return nil, api.NewError(api.ErrCodeInvalidMessage, "invalid document name: "+name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, api.NewError(api.ErrCodeInvalidState, "server is shut down")
	}
	if d, ok := s.docs[name]; ok {
		return d, nil
	}

	path := filepath.Join(s.Spec.Config.DataDir, name)
	text, existing, err := persist.Load(path)
	if err != nil {
		return nil, api.NewError(api.ErrCodeIOError, err.Error())
	}
	log := doclog.New(text, 0)
	d := &Document{
		Name: name,
		Log:  log,
		Saver: persist.New(log, path, existing,
			persist.WithDebounce(s.debounce()),
			persist.WithLogger(s.Spec.Log.With("doc", name)),
		),
	}
	s.docs[name] = d
	s.Spec.Log.Info("document loaded", "doc", name, "existing", existing, "version", log.Version())
	return d, nil
}

// StartTCP starts the TCP listener on the given address.
// The listener runs in a separate goroutine.
func (s *Server) StartTCP(addr string) error {
	if s.tcpListener != nil {
		return api.NewError(api.ErrCodeInvalidState, "TCP listener already running")
	}

	listener, err := NewTCPListener(addr, s)
	if err != nil {
		return err
	}

	s.tcpListener = listener

	go func() {
		if err := listener.Serve(); err != nil {
			s.Spec.Log.Error("TCP listener error", "error", err)
		}
	}()

	return nil
}

// StopTCP stops the TCP listener.
func (s *Server) StopTCP() error {
	if s.tcpListener == nil {
		return nil
	}

	err := s.tcpListener.Close()
	s.tcpListener = nil
	return err
}

// TCPAddr returns the TCP listener's address, or "" if not running.
func (s *Server) TCPAddr() string {
	if s.tcpListener == nil {
		return ""
	}
	return s.tcpListener.Addr().String()
}

// StartHTTP starts the websocket endpoint on the given address.
func (s *Server) StartHTTP(addr string) error {
	if s.httpServer != nil {
		return api.NewError(api.ErrCodeInvalidState, "HTTP listener already running")
	}
	hs, err := NewHTTPServer(addr, s)
	if err != nil {
		return err
	}
	s.httpServer = hs

	go func() {
		if err := hs.Serve(); err != nil && err != http.ErrServerClosed {
			s.Spec.Log.Error("HTTP listener error", "error", err)
		}
	}()

	return nil
}

// StopHTTP stops the websocket endpoint.
func (s *Server) StopHTTP() error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Close()
	s.httpServer = nil
	return err
}

// HTTPAddr returns the HTTP listener's address, or "" if not running.
func (s *Server) HTTPAddr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr().String()
}

// Close stops the listeners and tears down all documents. Each
// document's persistence is detached, with in-flight writes drained,
// before its log closes.
func (s *Server) Close() error {
	err := s.StopTCP()
	if herr := s.StopHTTP(); err == nil {
		err = herr
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.closed = true
	docs := s.docs
	s.docs = nil
	s.mu.Unlock()

	for _, d := range docs {
		d.Saver.Close()
		d.Log.Close()
	}
	s.Spec.Log.Info("server stopped")
	return err
}
