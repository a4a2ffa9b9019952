package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/system/syncd/api"
)

// Session serves one client connection: a jsonrpc2 conversation plus a
// log subscription per opened document, forwarded as doc/update
// notifications.
type Session struct {
	id     string
	server *Server
	conn   jsonrpc2.Conn
	log    *slog.Logger

	mu       sync.Mutex
	clientID string
	subs     map[string]*docSub
	wg       sync.WaitGroup
}

type docSub struct {
	doc *Document
	sub *doclog.Subscription
}

// NewSession creates a session over rwc. Run drives it.
func NewSession(id string, rwc io.ReadWriteCloser, server *Server) *Session {
	stream := jsonrpc2.NewStream(rwc)
	return &Session{
		id:     id,
		server: server,
		conn:   jsonrpc2.NewConn(stream),
		log:    server.Spec.Log.With("session", id),
		subs:   make(map[string]*docSub),
	}
}

// Run serves the connection until it closes, then detaches all document
// subscriptions.
func (s *Session) Run(ctx context.Context) error {
	s.conn.Go(ctx, s.handle)
	<-s.conn.Done()

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, ds := range subs {
		ds.doc.Log.Unsubscribe(ds.sub)
	}
	s.wg.Wait()

	err := s.conn.Err()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close terminates the connection; Run unwinds.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if debug.RPC() {
		debug.Logf("rpc %s: %s %s\n", s.id, req.Method(), string(req.Params()))
	}
	switch req.Method() {
	case api.MethodHello:
		var params api.HelloParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, api.NewError(api.ErrCodeInvalidMessage, err.Error()).Wire())
		}
		s.mu.Lock()
		s.clientID = params.ClientID
		s.mu.Unlock()
		s.log.Debug("hello", "client", params.ClientID)
		return reply(ctx, api.HelloResult{ServerID: s.server.ServerID()}, nil)

	case api.MethodOpen:
		var params api.OpenParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, api.NewError(api.ErrCodeInvalidMessage, err.Error()).Wire())
		}
		doc, err := s.server.Doc(params.Doc)
		if err != nil {
			return reply(ctx, nil, wireErr(err))
		}
		// Subscribe before snapshotting so no update can fall between
		// the two. An update landing in both is pushed with a version
		// below the client's expectation and discarded there.
		s.subscribe(ctx, doc)
		from := doc.Log.Version()
		if params.FromVersion != nil {
			from = *params.FromVersion
		}
		version, text, updates := doc.Log.State(from)
		s.log.Debug("open", "doc", params.Doc, "version", version, "catchUp", len(updates))
		return reply(ctx, api.OpenResult{
			Doc:     params.Doc,
			Version: version,
			Text:    text,
			Updates: updates,
		}, nil)

	case api.MethodAppend:
		var params api.AppendParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, api.NewError(api.ErrCodeInvalidMessage, err.Error()).Wire())
		}
		s.mu.Lock()
		ds := s.subs[params.Doc]
		s.mu.Unlock()
		if ds == nil {
			return reply(ctx, nil, api.NewError(api.ErrCodeInvalidState,
				"document not open in this session: "+params.Doc).Wire())
		}
		if err := ds.doc.Log.Append(params.Update); err != nil {
			return reply(ctx, nil, appendErr(err).Wire())
		}
		return reply(ctx, api.AppendResult{Version: params.Update.Version + 1}, nil)

	default:
		return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
	}
}

// subscribe attaches a forwarder for doc's updates, once per document.
func (s *Session) subscribe(ctx context.Context, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		return
	}
	if _, ok := s.subs[doc.Name]; ok {
		return
	}
	sub := doc.Log.Subscribe(0)
	s.subs[doc.Name] = &docSub{doc: doc, sub: sub}
	s.wg.Add(1)
	go s.forward(ctx, doc.Name, sub)
}

// forward pushes each commit on sub as a doc/update notification.
func (s *Session) forward(ctx context.Context, name string, sub *doclog.Subscription) {
	defer s.wg.Done()
	for c := range sub.Commits {
		event := api.UpdateEvent{Doc: name, Update: c.Update}
		if debug.RPC() {
			debug.LogAny(event)
		}
		if err := s.conn.Notify(ctx, api.MethodUpdate, event); err != nil {
			s.log.Debug("update notify failed", "doc", name, "error", err)
			return
		}
	}
	if sub.IsFailed() {
		s.log.Error("session fell behind document updates, closing", "doc", name)
		s.conn.Close()
	}
}

// appendErr maps a log append failure to its API error.
func appendErr(err error) *api.Error {
	switch {
	case errors.Is(err, doclog.ErrVersionConflict):
		return api.NewError(api.ErrCodeConflict, err.Error())
	case errors.Is(err, doclog.ErrLogClosed):
		return api.NewError(api.ErrCodeInvalidState, err.Error())
	default:
		return api.NewError(api.ErrCodeInvalidMessage, err.Error())
	}
}

// wireErr sends an *api.Error as its jsonrpc2 form; anything else
// passes through.
func wireErr(err error) error {
	var ae *api.Error
	if errors.As(err, &ae) {
		return ae.Wire()
	}
	return err
}
