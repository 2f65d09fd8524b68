package transport

import "errors"

var (
	ErrConnClosed   = errors.New("connection is closed")
	ErrWriteTimeout = errors.New("write timeout exceeded")
	ErrInvalidJSON  = errors.New("payload could not be encoded as JSON")
)
