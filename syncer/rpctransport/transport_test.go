package rpctransport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/change"
	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/system/syncd/api"
)

func TestSendErrConflict(t *testing.T) {
	wire := api.NewError(api.ErrCodeConflict, "log at 4, update at 2").Wire()
	err := toSendErr(wire)
	if !errors.Is(err, doclog.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSendErrOtherCodes(t *testing.T) {
	wire := api.NewError(api.ErrCodeInvalidState, "server is shut down").Wire()
	err := toSendErr(wire)
	if errors.Is(err, doclog.ErrVersionConflict) {
		t.Error("invalid_state must not read as a conflict")
	}
	var ae *api.Error
	if !errors.As(err, &ae) || ae.Code != api.ErrCodeInvalidState {
		t.Errorf("expected invalid_state api error, got %v", err)
	}
}

func TestSendErrPassthrough(t *testing.T) {
	plain := errors.New("connection reset")
	if got := toSendErr(plain); got != plain {
		t.Errorf("expected passthrough, got %v", got)
	}
}

func TestCloseWithFullUpdateStream(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { serverEnd.Close() })

	tr := &Transport{
		doc:     "doc.txt",
		updates: make(chan doclog.Update, 1),
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
	tr.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(clientEnd))
	tr.conn.Go(context.Background(), tr.handle)

	srvConn := jsonrpc2.NewConn(jsonrpc2.NewStream(serverEnd))
	srvConn.Go(context.Background(), jsonrpc2.MethodNotFoundHandler)
	defer srvConn.Close()

	// Push past the buffer with nobody reading Updates, so the run loop
	// ends up blocked delivering the second notification.
	for i := 0; i < 2; i++ {
		u := doclog.Update{Version: int64(i), Changes: change.Make("", "x"), Origin: "peer"}
		event := api.UpdateEvent{Doc: "doc.txt", Update: u}
		if err := srvConn.Notify(context.Background(), api.MethodUpdate, event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		tr.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked on an unread update stream")
	}
	// The stream terminates for any late reader.
	for range tr.Updates() {
	}
}
