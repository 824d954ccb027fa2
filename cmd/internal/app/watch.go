package app

import (
	"context"
	"sync"

	"daycheck/cmd/internal/auth/session"
	"daycheck/cmd/internal/realtime"
	"daycheck/cmd/internal/restapi"

	"github.com/robfig/cron/v3"
)

// Watcher ties the notification stream to the session: every authenticated
// user gets a fresh Stream and Inbox, and logout or expiry tears them down.
// An optional cron job refreshes the unread list and revives a stream whose
// retries ran out.
type Watcher struct {
	app     *App
	handler realtime.Handler

	mu      sync.Mutex
	ctx     context.Context
	userID  string
	inbox   *realtime.Inbox
	stream  *realtime.Stream
	retired []*realtime.Stream
}

// NewWatcher builds a Watcher that passes every delivered notification to onNotification.
func (a *App) NewWatcher(onNotification realtime.Handler) *Watcher {
	return &Watcher{app: a, handler: onNotification}
}

// Run follows the session until ctx is done. It does not log in by itself;
// it reacts to whatever the session manager reports.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	unsubscribe := w.app.sessions.Subscribe(w.follow)
	defer unsubscribe()
	w.follow(w.app.sessions.Snapshot())

	var poller *cron.Cron
	sched, err := w.app.cfg.pollSchedule()
	if err != nil {
		return err
	}
	if sched != nil {
		poller = cron.New(cron.WithLogger(cronLogger{log: w.app.log}))
		poller.Schedule(sched, cron.FuncJob(func() { w.Poll(ctx) }))
		poller.Start()
		w.app.log.Info("watch.poll.start", "schedule", w.app.cfg.PollSchedule)
	}

	<-ctx.Done()

	if poller != nil {
		<-poller.Stop().Done()
	}
	w.shutdown()
	return nil
}

// Inbox returns the unread list of the current session, or nil when logged out.
func (w *Watcher) Inbox() *realtime.Inbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inbox
}

// Stream returns the stream of the current session, or nil when logged out.
func (w *Watcher) Stream() *realtime.Stream {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream
}

// follow is the session subscriber.
func (w *Watcher) follow(s session.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil || w.ctx.Err() != nil {
		return
	}

	// A login attempt over a live session keeps the stream until it resolves.
	if s.State == session.StateAuthenticating && w.stream != nil {
		return
	}
	if !s.IsAuthenticated() || s.User == nil {
		if w.stream != nil {
			w.app.log.Info("watch.session.end", "state", s.State.String())
		}
		w.retireLocked()
		return
	}
	if w.stream != nil && w.userID == s.User.ID {
		return
	}

	w.retireLocked()
	w.userID = s.User.ID
	w.inbox = w.app.NewInbox()
	w.stream = w.app.NewStream(w.inbox)
	w.app.log.Info("watch.session.begin", "user_id", w.userID)

	inbox, ctx := w.inbox, w.ctx
	go func() {
		if err := inbox.Refresh(ctx); err != nil {
			w.app.log.Warn("watch.inbox.refresh.fail", "err", err)
		}
	}()
	w.stream.Start(ctx, w.handler)
}

// Poll refreshes the unread list. A rejected bearer triggers a token refresh;
// a stream that gave up reconnecting is started again.
func (w *Watcher) Poll(ctx context.Context) {
	w.mu.Lock()
	inbox, stream := w.inbox, w.stream
	w.mu.Unlock()
	if inbox == nil {
		return
	}

	err := inbox.Refresh(ctx)
	if restapi.IsUnauthorized(err) {
		if !w.app.sessions.RefreshToken(ctx) {
			return
		}
		err = inbox.Refresh(ctx)
	}
	if err != nil {
		w.app.log.Warn("watch.poll.fail", "err", err)
		return
	}
	w.app.log.Debug("watch.poll.ok", "unread", inbox.Len())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream == stream && stream.State() == realtime.StateStopped {
		w.app.log.Info("watch.stream.revive")
		stream.Start(w.ctx, w.handler)
	}
}

func (w *Watcher) retireLocked() {
	if w.stream != nil {
		w.stream.Stop()
		w.retired = append(w.retired, w.stream)
	}
	w.stream = nil
	w.inbox = nil
	w.userID = ""
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.retireLocked()
	retired := w.retired
	w.retired = nil
	w.mu.Unlock()

	for _, s := range retired {
		s.Wait()
	}
	w.app.log.Info("watch.stop")
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	log Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("watch.poll."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("watch.poll."+msg, append(keysAndValues, "err", err)...)
}
