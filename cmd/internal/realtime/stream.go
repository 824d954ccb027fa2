package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"daycheck/cmd/internal/metrics"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/jonboulle/clockwork"
)

// Reconnect policy defaults: a fixed delay and a bounded number of retries.
const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultMaxReconnects  = 5
)

// State is the connection state of a Stream.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	// StateStopped is terminal for the current session: retries ran out.
	StateStopped
)

var allStates = []State{StateIdle, StateConnecting, StateOpen, StateReconnecting, StateStopped}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func stateLabels() []string {
	out := make([]string, 0, len(allStates))
	for _, s := range allStates {
		out = append(out, s.String())
	}
	return out
}

// Handler receives decoded notifications.
type Handler func(v1.Notification)

// Stream keeps at most one live notification connection and retries failed
// connections after a fixed delay, a bounded number of times.
//
// A Stream belongs to one authenticated session: build it when the session
// starts and Stop it at logout.
type Stream struct {
	dialer      Dialer
	clock       clockwork.Clock
	log         *slog.Logger
	metrics     *metrics.Metrics
	inbox       *Inbox
	delay       time.Duration
	maxAttempts int

	mu       sync.Mutex
	state    State
	attempts int
	handler  Handler
	parent   context.Context
	cancel   context.CancelFunc
	gen      uint64
	subs     map[uint64]Handler
	nextSub  uint64

	wg sync.WaitGroup
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithClock replaces the clock that drives the retry delay.
func WithClock(c clockwork.Clock) StreamOption {
	return func(s *Stream) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStreamLogger sets the logger.
func WithStreamLogger(log *slog.Logger) StreamOption {
	return func(s *Stream) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStreamMetrics records state changes, retries and deliveries.
func WithStreamMetrics(m *metrics.Metrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// WithReconnectDelay sets the fixed wait before a retry.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithMaxReconnects sets how many retries follow the first failure. Zero disables retries.
func WithMaxReconnects(n int) StreamOption {
	return func(s *Stream) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithInbox prepends every delivered notification to inbox.
func WithInbox(inbox *Inbox) StreamOption {
	return func(s *Stream) { s.inbox = inbox }
}

// NewStream builds an idle Stream.
func NewStream(d Dialer, opts ...StreamOption) *Stream {
	s := &Stream{
		dialer:      d,
		clock:       clockwork.NewRealClock(),
		log:         slog.Default(),
		delay:       DefaultReconnectDelay,
		maxAttempts: DefaultMaxReconnects,
		subs:        make(map[uint64]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the connection and delivers notifications to onNotification.
// It is a no-op while a connection is open, being opened, or waiting to retry.
// Starting a Stopped stream begins a new retry budget.
// Cancelling ctx tears the connection down like Stop.
func (s *Stream) Start(ctx context.Context, onNotification Handler) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	switch s.state {
	case StateOpen, StateConnecting, StateReconnecting:
		s.mu.Unlock()
		return
	case StateStopped:
		s.attempts = 0
	}
	s.handler = onNotification
	s.parent = ctx
	s.connectLocked()
	s.mu.Unlock()
}

// Stop closes the live connection or cancels a pending retry, and returns to idle.
// It is a no-op when nothing is running.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Info("stream.stop")
}

// Wait blocks until the connection goroutines have exited.
func (s *Stream) Wait() { s.wg.Wait() }

// IsConnected reports whether the connection is open.
func (s *Stream) IsConnected() bool { return s.State() == StateOpen }

// State returns the current connection state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempts returns the retries made since the last successful open.
func (s *Stream) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Subscribe registers fn for every delivered notification, in addition to
// the Start callback.
func (s *Stream) Subscribe(fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Stream) setStateLocked(st State) {
	s.state = st
	s.metrics.SetStreamState(st.String(), stateLabels())
}

// connectLocked starts a new connection generation. The previous
// generation, if any, is cancelled and ignored from here on.
func (s *Stream) connectLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen

	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.setStateLocked(StateConnecting)

	s.wg.Add(1)
	go s.run(ctx, gen, s.handler)
}

func (s *Stream) run(ctx context.Context, gen uint64, h Handler) {
	defer s.wg.Done()

	body, err := s.dialer.Dial(ctx)
	if err == nil {
		if !s.opened(gen) {
			_ = body.Close()
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = body.Close() })
		err = readEvents(body, func(ev Event) { s.dispatch(gen, h, ev) })
		stop()
		_ = body.Close()
	}
	s.failed(ctx, gen, err)
}

func (s *Stream) opened(gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.attempts = 0
	s.setStateLocked(StateOpen)
	s.mu.Unlock()

	s.log.Info("stream.open")
	return true
}

func (s *Stream) failed(ctx context.Context, gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.parent.Err() != nil {
		s.gen++
		s.cancel = nil
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.log.Info("stream.stop", "reason", "context done")
		return
	}
	if s.attempts >= s.maxAttempts {
		cancel := s.cancel
		s.cancel = nil
		s.setStateLocked(StateStopped)
		attempts := s.attempts
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.metrics.ObserveExhausted()
		s.log.Error("stream.reconnect.exhausted", "attempts", attempts, "err", err)
		return
	}
	s.attempts++
	attempt := s.attempts
	s.setStateLocked(StateReconnecting)
	s.mu.Unlock()

	if isEOF(err) {
		s.log.Info("stream.closed", "attempt", attempt)
	}
	s.metrics.ObserveReconnect()
	s.log.Warn("stream.reconnect.scheduled", "attempt", attempt, "max", s.maxAttempts, "delay", s.delay, "err", err)

	timer := s.clock.NewTimer(s.delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		s.mu.Lock()
		if s.gen == gen {
			s.gen++
			s.cancel = nil
			s.setStateLocked(StateIdle)
		}
		s.mu.Unlock()
		return
	case <-timer.Chan():
	}

	s.mu.Lock()
	if s.gen == gen {
		s.connectLocked()
	}
	s.mu.Unlock()
}

func (s *Stream) dispatch(gen uint64, h Handler, ev Event) {
	switch ev.Name {
	case v1.EventConnect:
		s.log.Info("stream.connect", "data", ev.Data)
		return
	case v1.EventNotification:
	default:
		s.log.Debug("stream.event.ignored", "event", ev.Name)
		return
	}

	var n v1.Notification
	if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
		s.metrics.ObserveNotification(false)
		s.log.Warn("stream.notification.decode.fail", "err", err, "event_id", ev.ID)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	subs := make([]Handler, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.metrics.ObserveNotification(true)
	s.log.Debug("stream.notification", "id", n.ID.String())

	if s.inbox != nil {
		s.inbox.Prepend(n)
	}
	if h != nil {
		h(n)
	}
	for _, fn := range subs {
		fn(n)
	}
}
