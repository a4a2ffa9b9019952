package session

import "errors"

var (
	ErrRegistryClosed = errors.New("session registry closed")
	ErrNoSession      = errors.New("no such session")
)
