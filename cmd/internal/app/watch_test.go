package app

import (
	"context"
	"testing"
	"time"

	"daycheck/cmd/internal/devserver"
	"daycheck/cmd/internal/realtime"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/stretchr/testify/require"
)

func TestWatcher_FollowsSession(t *testing.T) {
	srv, apiURL := newBackend(t, func(c *devserver.Config) { c.RequireVerifiedEmail = false })
	a := newTestApp(t, apiURL)
	m := a.Sessions()
	const email = "watch@example.com"

	require.True(t, m.Register(t.Context(), email, testPassword, "Ada").Success, m.Err())

	got := make(chan v1.Notification, 8)
	w := a.NewWatcher(func(n v1.Notification) { got <- n })
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, "watcher subscribed", func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.ctx != nil
	})
	require.Nil(t, w.Stream(), "no stream before login")

	require.True(t, m.Login(t.Context(), email, testPassword), m.Err())
	waitFor(t, "stream open", func() bool {
		s := w.Stream()
		return s != nil && s.IsConnected()
	})
	first := w.Stream()
	userID := m.CurrentUser().ID

	sent, delivered, err := srv.Service().Notify(t.Context(), userID, "Standup")
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	select {
	case n := <-got:
		require.Equal(t, sent.ID, n.ID)
	case <-time.After(5 * time.Second):
		t.Fatalf("notification not delivered")
	}

	w.Poll(t.Context())
	require.Equal(t, 1, w.Inbox().Len())

	require.False(t, m.Login(t.Context(), email, "wrong-password-1"))
	require.True(t, m.Snapshot().IsAuthenticated())
	require.Same(t, first, w.Stream(), "failed re-login must keep the stream")
	require.True(t, first.IsConnected())
	require.Equal(t, 1, w.Inbox().Len())

	m.Logout()
	require.Nil(t, w.Stream())
	require.Nil(t, w.Inbox())
	first.Wait()
	require.Equal(t, realtime.StateIdle, first.State())

	require.True(t, m.Login(t.Context(), email, testPassword), m.Err())
	waitFor(t, "second stream open", func() bool {
		s := w.Stream()
		return s != nil && s.IsConnected()
	})
	second := w.Stream()
	require.NotSame(t, first, second)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	require.Equal(t, realtime.StateIdle, second.State())
}

func TestWatcher_PollWithoutSessionIsNoop(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "http://127.0.0.1:1")
	w := a.NewWatcher(nil)
	w.Poll(t.Context())
	require.Nil(t, w.Inbox())
}
