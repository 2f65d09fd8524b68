package connection

import "errors"

var (
	ErrNotConnected     = errors.New("connection is not established")
	ErrNoIdentity       = errors.New("no user identity to connect with")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)
