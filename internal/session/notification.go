package session

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
)

// DefaultNotificationTTL is how long a notification stays visible.
const DefaultNotificationTTL = 5 * time.Second

// NotificationKind classifies a notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationInfo    NotificationKind = "info"
)

// Notification is a transient user-facing message.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// notifier keeps at most one active notification. A newer notification
// replaces the current one and restarts the expiry timer.
type notifier struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
	stopped bool

	feed event.Feed
}

func newNotifier(ttl time.Duration, now func() time.Time) *notifier {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	if now == nil {
		now = time.Now
	}
	return &notifier{ttl: ttl, now: now}
}

func (n *notifier) show(kind NotificationKind, message string) Notification {
	created := n.now()
	note := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		CreatedAt: created,
		ExpiresAt: created.Add(n.ttl),
	}

	n.mu.Lock()
	n.current = &note
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.stopped {
		id := note.ID
		n.timer = time.AfterFunc(n.ttl, func() { n.expire(id) })
	}
	n.mu.Unlock()

	n.feed.Send(note)
	return note
}

func (n *notifier) expire(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != nil && n.current.ID == id {
		n.current = nil
	}
}

// active returns the current notification unless it has expired.
func (n *notifier) active() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notification{}, false
	}
	if !n.now().Before(n.current.ExpiresAt) {
		n.current = nil
		return Notification{}, false
	}
	return *n.current, true
}

func (n *notifier) subscribe(ch chan<- Notification) event.Subscription {
	return n.feed.Subscribe(ch)
}

func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
