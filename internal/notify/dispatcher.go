package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/internal/metrics"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

const previewMaxRunes = 80

const fallbackClassName = "Lớp học"

// Dispatcher turns incoming post and reply events into user-facing
// notifications. It is reactive and stateless across events: every decision
// is made from the event itself plus the collaborators it was handed.
type Dispatcher struct {
	ch        interfaces.EventChannel
	identity  interfaces.Identity
	users     interfaces.UserResolver
	classes   interfaces.ClassResolver
	view      interfaces.ViewContext
	sink      interfaces.Sink
	navigator interfaces.Navigator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher wires a dispatcher to the event channel. All collaborators
// except the sink may be nil; nil resolvers degrade to placeholders, a nil
// view context suppresses nothing, a nil navigator makes clicks no-ops.
func NewDispatcher(
	ch interfaces.EventChannel,
	identity interfaces.Identity,
	users interfaces.UserResolver,
	classes interfaces.ClassResolver,
	view interfaces.ViewContext,
	sink interfaces.Sink,
	navigator interfaces.Navigator,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*Dispatcher, error) {
	if sink == nil {
		return nil, ErrNoSink
	}

	d := &Dispatcher{
		ch:        ch,
		identity:  identity,
		users:     users,
		classes:   classes,
		view:      view,
		sink:      sink,
		navigator: navigator,
		logger:    logging.OrNop(logger),
		metrics:   m,
	}

	ch.On(types.EventPostCreated, d.handlePostCreated)
	ch.On(types.EventReplyCreated, d.handleReplyCreated)

	return d, nil
}

func (d *Dispatcher) handlePostCreated(data json.RawMessage) {
	var payload types.PostCreatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.dropEvent(types.EventPostCreated, err)
		return
	}
	if err := payload.Validate(); err != nil {
		d.dropEvent(types.EventPostCreated, err)
		return
	}

	preview := payload.Message
	if preview == "" {
		preview = payload.Title
	}
	resourceID := payload.ClassID
	if payload.ParentID != nil {
		resourceID = *payload.ParentID
	}

	d.dispatch(types.NotificationEvent{
		Kind:           types.KindPost,
		ClassID:        payload.ClassID,
		SenderID:       payload.SenderID,
		ResourceID:     resourceID,
		ContentPreview: types.TruncatePreview(preview, previewMaxRunes),
		Timestamp:      time.Now(),
	})
}

func (d *Dispatcher) handleReplyCreated(data json.RawMessage) {
	var payload types.ReplyCreatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.dropEvent(types.EventReplyCreated, err)
		return
	}
	if err := payload.Validate(); err != nil {
		d.dropEvent(types.EventReplyCreated, err)
		return
	}

	d.dispatch(types.NotificationEvent{
		Kind:           types.KindReply,
		ClassID:        payload.ClassID,
		SenderID:       payload.SenderID,
		ResourceID:     payload.ClassID,
		ContentPreview: types.TruncatePreview(payload.Message, previewMaxRunes),
		Timestamp:      time.Now(),
	})
}

// dispatch applies the suppression rules in order and emits at most one
// notification. First matching rule wins; nothing is retried or persisted.
func (d *Dispatcher) dispatch(event types.NotificationEvent) {
	if d.identity != nil && event.SenderID == d.identity.CurrentUserID() {
		d.metrics.IncSuppressed("self")
		d.logger.Debug("suppressing self-authored event",
			zap.String("kind", string(event.Kind)), zap.Int("class_id", event.ClassID))
		return
	}

	if d.view != nil && d.view.IsViewing(event.ClassID, event.ResourceID) {
		d.metrics.IncSuppressed("viewing")
		d.logger.Debug("suppressing event for resource on screen",
			zap.String("kind", string(event.Kind)), zap.Int("class_id", event.ClassID))
		return
	}

	n := d.build(event)
	d.sink.Deliver(n)
	d.metrics.IncEmitted()
	d.logger.Info("notification emitted",
		zap.String("kind", string(event.Kind)),
		zap.Int("class_id", event.ClassID),
		zap.String("dedup_key", n.DedupKey))
}

// build resolves display names and assembles the notification payload.
// Unresolved IDs degrade to placeholders; resolution never blocks delivery.
func (d *Dispatcher) build(event types.NotificationEvent) *types.Notification {
	senderName := fmt.Sprintf("user%d", event.SenderID)
	if d.users != nil {
		if name, ok := d.users.ResolveUser(event.SenderID); ok {
			senderName = name
		}
	}

	className := fallbackClassName
	if d.classes != nil {
		if name, ok := d.classes.ResolveClass(event.ClassID); ok {
			className = name
		}
	}

	var title string
	switch event.Kind {
	case types.KindReply:
		title = fmt.Sprintf("Phản hồi mới trong %s", className)
	default:
		title = fmt.Sprintf("Bài viết mới trong %s", className)
	}

	classID := event.ClassID
	return &types.Notification{
		ID:       uuid.New().String(),
		Title:    title,
		Body:     fmt.Sprintf("%s: %s", senderName, event.ContentPreview),
		DedupKey: event.DedupKey(),
		Event:    event,
		OnClick: func() {
			if d.navigator != nil {
				d.navigator.NavigateToClass(classID)
			}
		},
	}
}

// dropEvent logs and counts a malformed event. Processing of later events
// continues unaffected.
func (d *Dispatcher) dropEvent(event string, err error) {
	d.metrics.IncDropped()
	d.logger.Warn("dropping malformed event",
		zap.String("event", event), zap.Error(err))
}
