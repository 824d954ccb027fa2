package devserver

import (
	"log/slog"
	"sync"

	"daycheck/cmd/internal/metrics"
	v1 "daycheck/shared/contracts/push/v1"
)

// Subscription is one open notification stream.
//
// send is never closed by the broker, so a Publish racing with Unsubscribe
// cannot panic; done tells the stream handler to stop.
type Subscription struct {
	id     uint64
	userID string
	send   chan v1.Notification

	done      chan struct{}
	closeOnce sync.Once
}

// C delivers the notifications published to this stream.
func (s *Subscription) C() <-chan v1.Notification { return s.send }

// Done is closed once the stream has been unsubscribed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Broker fans notifications out to the open streams of each user.
// Publish never blocks: a stream whose queue is full misses the event.
type Broker struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	queue   int

	mu     sync.RWMutex
	nextID uint64
	users  map[string]map[uint64]*Subscription
	closed bool
}

func NewBroker(log *slog.Logger, m *metrics.Metrics, queue int) *Broker {
	if log == nil {
		log = slog.Default()
	}
	if queue <= 0 {
		queue = 32
	}
	return &Broker{
		log:     log,
		metrics: m,
		queue:   queue,
		users:   make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe registers a stream for userID. It returns nil after Close.
func (b *Broker) Subscribe(userID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		userID: userID,
		send:   make(chan v1.Notification, b.queue),
		done:   make(chan struct{}),
	}
	if b.users[userID] == nil {
		b.users[userID] = make(map[uint64]*Subscription)
	}
	b.users[userID][s.id] = s
	b.metrics.AddSSEClients(1)

	b.log.Info("broker.subscribe", "user_id", userID, "stream_id", s.id)
	return s
}

// Unsubscribe removes s and signals it to stop. Safe to call twice.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	subs := b.users[s.userID]
	_, ok := subs[s.id]
	if ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(b.users, s.userID)
		}
	}
	b.mu.Unlock()

	s.close()
	if ok {
		b.metrics.AddSSEClients(-1)
		b.log.Info("broker.unsubscribe", "user_id", s.userID, "stream_id", s.id)
	}
}

// Publish queues n on every open stream of userID and reports how many
// streams accepted it.
func (b *Broker) Publish(userID string, n v1.Notification) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, s := range b.users[userID] {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.send <- n:
			delivered++
		default:
			b.log.Warn("broker.publish.drop", "user_id", userID, "stream_id", s.id, "notification_id", n.ID.String())
		}
	}
	return delivered
}

// Streams returns the number of open streams of userID.
func (b *Broker) Streams(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.users[userID])
}

// Close ends every stream and rejects new subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, subs := range b.users {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	b.users = make(map[string]map[uint64]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.close()
		b.metrics.AddSSEClients(-1)
	}
}
