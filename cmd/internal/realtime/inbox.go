package realtime

import (
	"context"
	"log/slog"
	"sync"

	v1 "daycheck/shared/contracts/push/v1"
)

// NotificationAPI is the REST surface the Inbox uses.
type NotificationAPI interface {
	UnreadNotifications(ctx context.Context) ([]v1.Notification, error)
	AllNotifications(ctx context.Context) ([]v1.Notification, error)
	MarkRead(ctx context.Context, id v1.ID) (v1.Notification, error)
	MarkAllRead(ctx context.Context) error
}

// Inbox is the local unread list, newest first.
// A notification that is not in the list counts as read.
type Inbox struct {
	api      NotificationAPI
	log      *slog.Logger
	rollback bool

	mu    sync.Mutex
	items []v1.Notification
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithRollback restores an optimistically removed item when the mark-read
// request fails. Off by default: the item stays removed.
func WithRollback(on bool) InboxOption {
	return func(i *Inbox) { i.rollback = on }
}

// WithInboxLogger sets the logger.
func WithInboxLogger(log *slog.Logger) InboxOption {
	return func(i *Inbox) {
		if log != nil {
			i.log = log
		}
	}
}

// NewInbox returns an empty Inbox.
func NewInbox(api NotificationAPI, opts ...InboxOption) *Inbox {
	i := &Inbox{api: api, log: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Unread returns a copy of the unread list.
func (i *Inbox) Unread() []v1.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]v1.Notification, len(i.items))
	copy(out, i.items)
	return out
}

// Len returns the number of unread notifications.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}

// Refresh replaces the local list with the server's unread list.
func (i *Inbox) Refresh(ctx context.Context) error {
	list, err := i.api.UnreadNotifications(ctx)
	if err != nil {
		i.log.Warn("inbox.refresh.fail", "err", err)
		return err
	}

	i.mu.Lock()
	i.items = dedupe(list)
	n := len(i.items)
	i.mu.Unlock()

	i.log.Debug("inbox.refresh", "unread", n)
	return nil
}

// All lists every notification from the server without touching the local list.
func (i *Inbox) All(ctx context.Context) ([]v1.Notification, error) {
	return i.api.AllNotifications(ctx)
}

// Prepend adds n at the head of the list. It reports false when an item with
// the same ID is already present.
func (i *Inbox) Prepend(n v1.Notification) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n.ID != "" {
		for _, it := range i.items {
			if it.ID == n.ID {
				return false
			}
		}
	}
	i.items = append([]v1.Notification{n}, i.items...)
	return true
}

// MarkRead removes id from the list, then tells the server.
func (i *Inbox) MarkRead(ctx context.Context, id v1.ID) error {
	i.mu.Lock()
	idx := -1
	for k, it := range i.items {
		if it.ID == id {
			idx = k
			break
		}
	}
	var removed v1.Notification
	if idx >= 0 {
		removed = i.items[idx]
		i.items = append(i.items[:idx:idx], i.items[idx+1:]...)
	}
	i.mu.Unlock()

	if _, err := i.api.MarkRead(ctx, id); err != nil {
		i.log.Warn("inbox.mark_read.fail", "id", id.String(), "err", err, "rollback", i.rollback && idx >= 0)
		if i.rollback && idx >= 0 {
			i.restore(idx, removed)
		}
		return err
	}
	return nil
}

// MarkAllRead tells the server and clears the list once it agrees.
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	if err := i.api.MarkAllRead(ctx); err != nil {
		i.log.Warn("inbox.mark_all_read.fail", "err", err)
		return err
	}
	i.mu.Lock()
	i.items = nil
	i.mu.Unlock()
	return nil
}

func (i *Inbox) restore(idx int, n v1.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, it := range i.items {
		if it.ID == n.ID {
			return
		}
	}
	if idx > len(i.items) {
		idx = len(i.items)
	}
	i.items = append(i.items[:idx:idx], append([]v1.Notification{n}, i.items[idx:]...)...)
}

func dedupe(list []v1.Notification) []v1.Notification {
	out := make([]v1.Notification, 0, len(list))
	seen := make(map[v1.ID]struct{}, len(list))
	for _, n := range list {
		if n.ID != "" {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
		}
		out = append(out, n)
	}
	return out
}
