package api

import (
	"errors"
	"fmt"

	"go.lsp.dev/jsonrpc2"
)

// Common error codes
const (
	ErrCodeConflict       = "conflict"
	ErrCodeInvalidState   = "invalid_state"
	ErrCodeNotFound       = "not_found"
	ErrCodeIOError        = "io_error"
	ErrCodeInvalidMessage = "invalid_message"
)

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Is implements the errors.Is interface for error matching.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	if t.Message != "" {
		return e.Message == t.Message
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// JSON-RPC error codes for the API error codes, in the server-defined
// range below the reserved one.
const (
	wireConflict       jsonrpc2.Code = -32001
	wireInvalidState   jsonrpc2.Code = -32002
	wireNotFound       jsonrpc2.Code = -32003
	wireIOError        jsonrpc2.Code = -32004
	wireInvalidMessage jsonrpc2.Code = -32005
)

var wireCodes = map[string]jsonrpc2.Code{
	ErrCodeConflict:       wireConflict,
	ErrCodeInvalidState:   wireInvalidState,
	ErrCodeNotFound:       wireNotFound,
	ErrCodeIOError:        wireIOError,
	ErrCodeInvalidMessage: wireInvalidMessage,
}

// Wire converts e to the jsonrpc2 error carried in a response. Unknown
// codes map to the generic internal error code.
func (e *Error) Wire() error {
	if e == nil {
		return nil
	}
	if c, ok := wireCodes[e.Code]; ok {
		return jsonrpc2.NewError(c, e.Message)
	}
	return jsonrpc2.NewError(jsonrpc2.InternalError, e.Error())
}

// FromWire recovers an *Error from an error returned by a jsonrpc2
// call. It returns nil if err carries no recognized API code.
func FromWire(err error) *Error {
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		return nil
	}
	for code, c := range wireCodes {
		if rpcErr.Code == c {
			return NewError(code, rpcErr.Message)
		}
	}
	return nil
}
