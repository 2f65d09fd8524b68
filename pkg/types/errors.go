package types

import "errors"

// Wire contract validation errors. A payload failing validation is treated
// as a protocol error: the event is dropped and logged, processing continues.
var (
	ErrInvalidUserID  = errors.New("invalid user id")
	ErrInvalidClassID = errors.New("invalid class id")
	ErrInvalidStatus  = errors.New("invalid presence status")
	ErrEmptyMessage   = errors.New("empty message content")
)
