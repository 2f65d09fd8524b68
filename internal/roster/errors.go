package roster

import "errors"

var (
	ErrStoreClosed   = errors.New("roster store is closed")
	ErrFetchFailed   = errors.New("class list fetch failed")
	ErrNoBaseURL     = errors.New("roster base URL not configured")
	ErrInvalidUserID = errors.New("invalid user id for roster fetch")
)
