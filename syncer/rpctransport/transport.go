// Package rpctransport connects a syncer.Client to a syncd server over
// the jsonrpc2 session protocol, with exponential-backoff dialing.
package rpctransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/cenkalti/backoff"
	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/system/syncd/api"
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithFromVersion asks the open handshake for the updates accepted at or
// after v, so a reconnecting client can catch up.
func WithFromVersion(v int64) Option {
	return func(t *Transport) { t.fromVersion = &v }
}

// Transport is a syncer.Transport speaking the syncd session protocol
// for one document over one connection.
type Transport struct {
	doc         string
	conn        jsonrpc2.Conn
	updates     chan doclog.Update
	done        chan struct{}
	logger      *slog.Logger
	fromVersion *int64

	closeOnce sync.Once
}

// Dial connects to addr, retrying with exponential backoff until ctx is
// done, then performs the hello and open handshake. It returns the
// transport together with the document's state at open time; callers
// seed their local log from that state before starting a client.
func Dial(ctx context.Context, addr, clientID, doc string, opts ...Option) (*Transport, *api.OpenResult, error) {
	t := &Transport{
		doc:     doc,
		updates: make(chan doclog.Update, doclog.DefaultSubscribeBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	var netConn net.Conn
	dial := func() error {
		var err error
		netConn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			t.logger.Debug("dial failed, backing off", "addr", addr, "error", err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(dial, bo); err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	t.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(netConn))
	t.conn.Go(ctx, t.handle)

	var hello api.HelloResult
	if _, err := t.conn.Call(ctx, api.MethodHello, api.HelloParams{ClientID: clientID}, &hello); err != nil {
		t.conn.Close()
		return nil, nil, fmt.Errorf("hello failed: %w", err)
	}
	var open api.OpenResult
	params := api.OpenParams{Doc: doc, FromVersion: t.fromVersion}
	if _, err := t.conn.Call(ctx, api.MethodOpen, params, &open); err != nil {
		t.conn.Close()
		return nil, nil, fmt.Errorf("open %s failed: %w", doc, toSendErr(err))
	}
	t.logger.Debug("connected", "addr", addr, "server", hello.ServerID,
		"doc", doc, "version", open.Version)
	return t, &open, nil
}

// handle receives server-pushed doc/update notifications.
func (t *Transport) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() != api.MethodUpdate {
		return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
	}
	var event api.UpdateEvent
	if err := json.Unmarshal(req.Params(), &event); err != nil {
		t.logger.Warn("malformed update notification", "error", err)
		return reply(ctx, nil, nil)
	}
	if debug.RPC() {
		debug.Logf("rpc %s: update v%d from %s\n", event.Doc, event.Update.Version, event.Update.Origin)
	}
	if event.Doc == t.doc {
		// The dial ctx outlives the transport; select on done so a full
		// channel cannot pin the run loop once Close begins.
		select {
		case t.updates <- event.Update:
		case <-t.done:
		case <-ctx.Done():
		}
	}
	return reply(ctx, nil, nil)
}

// Send proposes u for the document. A version rejection comes back as an
// error matching doclog.ErrVersionConflict.
func (t *Transport) Send(ctx context.Context, u doclog.Update) error {
	var res api.AppendResult
	_, err := t.conn.Call(ctx, api.MethodAppend, api.AppendParams{Doc: t.doc, Update: u}, &res)
	if debug.RPC() {
		debug.Logf("rpc %s: append v%d, err=%v\n", t.doc, u.Version, err)
	}
	if err != nil {
		return toSendErr(err)
	}
	return nil
}

// Updates returns the inbound update stream. It is closed when the
// transport closes.
func (t *Transport) Updates() <-chan doclog.Update {
	return t.updates
}

// Close terminates the connection and the update stream.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.Close()
		// No handler can run past Done, so the channel is safe to close.
		<-t.conn.Done()
		close(t.updates)
	})
	return nil
}

// toSendErr maps wire errors to the errors callers branch on.
func toSendErr(err error) error {
	ae := api.FromWire(err)
	if ae == nil {
		return err
	}
	if ae.Code == api.ErrCodeConflict {
		return fmt.Errorf("%w: %s", doclog.ErrVersionConflict, ae.Message)
	}
	return ae
}
