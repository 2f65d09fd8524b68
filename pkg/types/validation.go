package types

// IsValidStatus reports whether s is one of the three presence statuses.
func IsValidStatus(s PresenceStatus) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	default:
		return false
	}
}

// Validate checks a presence update against the wire contract.
func (p PresenceUpdatePayload) Validate() error {
	if p.UserID <= 0 {
		return ErrInvalidUserID
	}
	if !IsValidStatus(p.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Validate checks a post event against the wire contract.
func (p PostCreatedPayload) Validate() error {
	if p.ClassID <= 0 {
		return ErrInvalidClassID
	}
	if p.SenderID <= 0 {
		return ErrInvalidUserID
	}
	if p.Message == "" && p.Title == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Validate checks a reply event against the wire contract.
func (p ReplyCreatedPayload) Validate() error {
	if p.ClassID <= 0 {
		return ErrInvalidClassID
	}
	if p.SenderID <= 0 {
		return ErrInvalidUserID
	}
	if p.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Validate checks a room join payload.
func (p RoomJoinPayload) Validate() error {
	if p.ClassID <= 0 {
		return ErrInvalidClassID
	}
	return nil
}

// TruncatePreview shortens message content to at most max runes for use as a
// notification body. Multi-byte text is cut on rune boundaries.
func TruncatePreview(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
