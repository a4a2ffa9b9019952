package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// HTTPServer exposes the session protocol to browser editors over a
// websocket endpoint at /sync. Each connection speaks the same framed
// jsonrpc2 stream as the TCP listener.
type HTTPServer struct {
	listener net.Listener
	server   *Server
	httpSrv  *http.Server

	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	sessionSeq atomic.Int64

	wg     sync.WaitGroup
	closed atomic.Bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Editors connect from arbitrary local origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHTTPServer creates the websocket listener.
func NewHTTPServer(addr string, server *Server) (*HTTPServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	hs := &HTTPServer{
		listener: listener,
		server:   server,
		sessions: make(map[string]*Session),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", hs.handleSync)
	hs.httpSrv = &http.Server{Handler: mux}
	return hs, nil
}

// Addr returns the listener's network address.
func (h *HTTPServer) Addr() net.Addr {
	return h.listener.Addr()
}

// Serve blocks serving websocket upgrades until Close.
func (h *HTTPServer) Serve() error {
	h.server.Spec.Log.Info("websocket listener started", "addr", h.listener.Addr().String())
	return h.httpSrv.Serve(h.listener)
}

// Close shuts down the HTTP server and waits for its sessions. Upgraded
// connections are hijacked from the HTTP server, so they are closed
// individually.
func (h *HTTPServer) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	err := h.httpSrv.Close()

	h.sessionsMu.RLock()
	for _, session := range h.sessions {
		session.Close()
	}
	h.sessionsMu.RUnlock()

	h.wg.Wait()
	h.server.Spec.Log.Info("websocket listener stopped")
	return err
}

func (h *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.server.Spec.Log.Error("websocket upgrade failed", "error", err)
		return
	}

	seq := h.sessionSeq.Add(1)
	sessionID := fmt.Sprintf("ws-%d", seq)
	h.server.Spec.Log.Debug("new websocket connection", "session", sessionID, "remote", conn.RemoteAddr().String())

	session := NewSession(sessionID, &wsStream{conn: conn}, h.server)

	h.sessionsMu.Lock()
	h.sessions[sessionID] = session
	h.sessionsMu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// Not r.Context(): the handler returns right after the upgrade
		// and the request context dies with it.
		if err := session.Run(context.Background()); err != nil {
			h.server.Spec.Log.Error("session error", "session", sessionID, "error", err)
		}

		h.sessionsMu.Lock()
		delete(h.sessions, sessionID)
		h.sessionsMu.Unlock()

		h.server.Spec.Log.Debug("session ended", "session", sessionID)
	}()
}

// wsStream presents a websocket connection as the byte stream the
// jsonrpc2 framing expects: reads concatenate incoming messages, each
// write goes out as one binary message.
type wsStream struct {
	conn *websocket.Conn

	rmu sync.Mutex
	r   io.Reader

	wmu sync.Mutex
}

func (w *wsStream) Read(p []byte) (int, error) {
	w.rmu.Lock()
	defer w.rmu.Unlock()
	for {
		if w.r == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			// Message exhausted; continue with the next one.
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsStream) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error {
	return w.conn.Close()
}
