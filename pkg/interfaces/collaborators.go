package interfaces

import (
	"context"

	"classwire/pkg/types"
)

// Identity supplies the current user's identity. Pull-based: callers read it
// at decision time rather than subscribing to login/logout.
type Identity interface {
	CurrentUserID() int
}

// UserResolver maps a user ID to a display name. Implementations are owned by
// the caller (typically a user cache); ok=false degrades to a placeholder.
type UserResolver interface {
	ResolveUser(userID int) (name string, ok bool)
}

// ClassResolver maps a class ID to a display name.
type ClassResolver interface {
	ResolveClass(classID int) (name string, ok bool)
}

// ViewContext reports whether the user is currently looking at a resource.
// Used to suppress notifications about the thing already on screen.
type ViewContext interface {
	IsViewing(classID, resourceID int) bool
}

// Sink is the platform notification surface. Implementations are expected to
// collapse notifications sharing a dedup key rather than stacking them.
type Sink interface {
	Deliver(n *types.Notification)
}

// Navigator moves the user to the relevant class when a notification is
// clicked.
type Navigator interface {
	NavigateToClass(classID int)
}

// ClassSource supplies the authoritative class list for a user. REST-style
// pull; the roster service polls it on an interval.
type ClassSource interface {
	FetchClasses(ctx context.Context, userID int) ([]types.Class, error)
}
