package devserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"daycheck/cmd/internal/auth/session"
	"daycheck/cmd/internal/devserver"
	"daycheck/cmd/internal/realtime"
	"daycheck/cmd/internal/restapi"
	"daycheck/cmd/security/password"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEnd_SessionStreamInbox(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	pw := password.DefaultConfig()
	pw.MemoryKiB = 8 * 1024
	pw.Iterations = 1

	cfg := devserver.DefaultConfig()
	cfg.KeepAlive = 0
	srv, err := devserver.New(ctx, cfg, devserver.WithLogger(log), devserver.WithPasswordConfig(pw))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
	})

	api, err := restapi.New(ts.URL, restapi.WithLogger(log))
	require.NoError(t, err)
	tokens := session.NewMemoryStore()
	mgr := session.NewManager(api, tokens, session.WithLogger(log))

	mgr.Initialize(ctx)
	require.Equal(t, session.StateUnauthenticated, mgr.State())
	require.False(t, mgr.Loading())

	const (
		email  = "e2e@example.com"
		secret = "correct-horse-battery"
	)
	require.True(t, mgr.Register(ctx, email, secret, "Ada").Success, mgr.Err())

	require.False(t, mgr.Login(ctx, email, secret))
	require.Equal(t, mgr.Messages().EmailNotVerified, mgr.Err())
	require.Equal(t, session.StateUnauthenticated, mgr.State())

	var pending struct {
		Code string `json:"code"`
	}
	require.NoError(t, api.Do(ctx, http.MethodGet, "/api/dev/verifications", url.Values{"email": {email}}, nil, &pending))
	require.True(t, mgr.VerifyEmail(ctx, email, pending.Code).Success, mgr.Err())

	require.True(t, mgr.Login(ctx, email, secret), mgr.Err())
	require.True(t, mgr.Snapshot().IsAuthenticated())
	user := mgr.CurrentUser()
	require.NotNil(t, user)
	require.Equal(t, email, user.Email)

	inbox := realtime.NewInbox(api, realtime.WithInboxLogger(log))
	stream := realtime.NewStream(realtime.NewHTTPDialer(api),
		realtime.WithInbox(inbox),
		realtime.WithStreamLogger(log),
		realtime.WithReconnectDelay(50*time.Millisecond),
	)
	got := make(chan v1.Notification, 4)
	stream.Start(ctx, func(n v1.Notification) { got <- n })
	waitFor(t, "stream open", stream.IsConnected)

	sent, delivered, err := srv.Service().Notify(ctx, user.ID, "Standup in 5 minutes")
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	select {
	case n := <-got:
		require.Equal(t, sent.ID, n.ID)
		require.Equal(t, "Standup in 5 minutes", n.Message)
	case <-time.After(5 * time.Second):
		t.Fatalf("notification not delivered")
	}
	require.Equal(t, 1, inbox.Len())

	require.NoError(t, inbox.MarkRead(ctx, sent.ID))
	require.Zero(t, inbox.Len())
	unread, err := api.UnreadNotifications(ctx)
	require.NoError(t, err)
	require.Empty(t, unread)

	before, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.True(t, mgr.RefreshToken(ctx))
	after, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.Equal(t, after.AccessToken, api.Bearer())

	me, err := api.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, me.ID)

	mgr.Logout()
	stream.Stop()
	stream.Wait()

	require.Equal(t, session.StateUnauthenticated, mgr.State())
	require.Equal(t, realtime.StateIdle, stream.State())
	require.Empty(t, api.Bearer())
	left, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.True(t, left.IsZero())
}
