package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"classwire/pkg/types"
)

func TestStaticIdentity(t *testing.T) {
	assert.Equal(t, 7, staticIdentity{userID: 7}.CurrentUserID())
}

func TestResolveUserID(t *testing.T) {
	assert.Equal(t, 3, resolveUserID(3))

	t.Setenv("CLASSWIRE_USER_ID", "12")
	assert.Equal(t, 12, resolveUserID(0))
	assert.Equal(t, 3, resolveUserID(3))

	t.Setenv("CLASSWIRE_USER_ID", "twelve")
	assert.Equal(t, 0, resolveUserID(0))
}

func TestConsoleSinkHandlesNotification(t *testing.T) {
	// Must not panic on a fully populated notification.
	consoleSink{}.Deliver(&types.Notification{
		ID:       "n1",
		Title:    "Bài viết mới trong Toán 10A",
		Body:     "Giang: bài tập tuần này",
		DedupKey: "post-5",
	})
}
