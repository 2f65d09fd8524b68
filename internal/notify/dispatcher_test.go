package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwire/internal/wiretest"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

type fixedIdentity int

func (f fixedIdentity) CurrentUserID() int { return int(f) }

type mapUsers map[int]string

func (m mapUsers) ResolveUser(id int) (string, bool) {
	name, ok := m[id]
	return name, ok
}

type mapClasses map[int]string

func (m mapClasses) ResolveClass(id int) (string, bool) {
	name, ok := m[id]
	return name, ok
}

type viewingFunc func(classID, resourceID int) bool

func (f viewingFunc) IsViewing(classID, resourceID int) bool { return f(classID, resourceID) }

type captureSink struct {
	delivered []*types.Notification
}

func (s *captureSink) Deliver(n *types.Notification) { s.delivered = append(s.delivered, n) }

type captureNavigator struct {
	classID int
}

func (n *captureNavigator) NavigateToClass(classID int) { n.classID = classID }

func newTestDispatcher(t *testing.T, identity fixedIdentity, view interfaces.ViewContext) (*wiretest.Channel, *captureSink, *captureNavigator) {
	t.Helper()
	ch := wiretest.NewChannel()
	sink := &captureSink{}
	nav := &captureNavigator{}
	_, err := NewDispatcher(ch, identity,
		mapUsers{2: "Giang", 3: "Minh"},
		mapClasses{5: "Toán 10A"},
		view, sink, nav, nil, nil)
	require.NoError(t, err)
	return ch, sink, nav
}

func TestSelfAuthoredPostNeverNotifies(t *testing.T) {
	ch, sink, _ := newTestDispatcher(t, 1, nil)

	// Any combination of other fields must still be suppressed.
	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 1, Title: "Hi", Message: "...",
	})
	ch.Emit(types.EventReplyCreated, types.ReplyCreatedPayload{
		ClassID: 99, SenderID: 1, Message: "self reply",
	})

	assert.Empty(t, sink.delivered)
}

func TestViewedResourceIsSuppressed(t *testing.T) {
	viewing := viewingFunc(func(classID, _ int) bool { return classID == 5 })
	ch, sink, _ := newTestDispatcher(t, 1, viewing)

	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 2, Message: "on screen",
	})
	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 6, SenderID: 2, Message: "off screen",
	})

	require.Len(t, sink.delivered, 1)
	assert.Equal(t, 6, sink.delivered[0].Event.ClassID)
}

func TestPostInJoinedRoomEmitsOneNotification(t *testing.T) {
	notViewing := viewingFunc(func(_, _ int) bool { return false })
	ch, sink, _ := newTestDispatcher(t, 1, notViewing)

	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 2, Title: "Hi", Message: "bài tập tuần này",
	})

	require.Len(t, sink.delivered, 1)
	n := sink.delivered[0]
	assert.Equal(t, "post-5", n.DedupKey)
	assert.Contains(t, n.Title, "Toán 10A")
	assert.Contains(t, n.Body, "Giang")
	assert.Contains(t, n.Body, "bài tập tuần này")
	assert.NotEmpty(t, n.ID)
}

func TestUnresolvedNamesFallBackToPlaceholders(t *testing.T) {
	ch, sink, _ := newTestDispatcher(t, 1, nil)

	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 77, SenderID: 88, Message: "hello",
	})

	require.Len(t, sink.delivered, 1)
	n := sink.delivered[0]
	assert.Contains(t, n.Title, "Lớp học")
	assert.Contains(t, n.Body, "user88")
}

func TestReplyUsesReplyKindAndTitle(t *testing.T) {
	ch, sink, _ := newTestDispatcher(t, 1, nil)

	ch.Emit(types.EventReplyCreated, types.ReplyCreatedPayload{
		ClassID: 5, SenderID: 3, Message: "đồng ý",
	})

	require.Len(t, sink.delivered, 1)
	n := sink.delivered[0]
	assert.Equal(t, "reply-5", n.DedupKey)
	assert.Equal(t, types.KindReply, n.Event.Kind)
	assert.Contains(t, n.Title, "Phản hồi")
}

func TestMalformedEventIsDroppedWithoutHaltingLaterEvents(t *testing.T) {
	ch, sink, _ := newTestDispatcher(t, 1, nil)

	ch.EmitRaw(types.EventPostCreated, json.RawMessage(`{"class_id":"x"}`))
	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 0, SenderID: 2, Message: "invalid class",
	})
	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 2, Message: "still works",
	})

	require.Len(t, sink.delivered, 1)
	assert.Contains(t, sink.delivered[0].Body, "still works")
}

func TestClickNavigatesToClass(t *testing.T) {
	ch, sink, nav := newTestDispatcher(t, 1, nil)

	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 2, Message: "click me",
	})

	require.Len(t, sink.delivered, 1)
	sink.delivered[0].OnClick()
	assert.Equal(t, 5, nav.classID)
}

func TestLongMessageIsTruncatedForBody(t *testing.T) {
	ch, sink, _ := newTestDispatcher(t, 1, nil)

	long := make([]rune, 300)
	for i := range long {
		long[i] = 'ê'
	}
	ch.Emit(types.EventPostCreated, types.PostCreatedPayload{
		ClassID: 5, SenderID: 2, Message: string(long),
	})

	require.Len(t, sink.delivered, 1)
	assert.Less(t, len([]rune(sink.delivered[0].Event.ContentPreview)), 100)
}

func TestNilSinkIsRejected(t *testing.T) {
	ch := wiretest.NewChannel()
	_, err := NewDispatcher(ch, fixedIdentity(1), nil, nil, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoSink)
}
