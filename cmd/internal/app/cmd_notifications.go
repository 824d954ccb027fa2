package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"daycheck/cmd/internal/auth/session"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func (c *cli) notificationsCommand() *cobra.Command {
	list := func(ctx context.Context, a *App, _ []string) error {
		inbox := a.NewInbox()
		if err := inbox.Refresh(ctx); err != nil {
			return err
		}
		c.printNotifications(a, inbox.Unread(), "no unread notifications")
		return nil
	}

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "List and acknowledge notifications",
		Args:    cobra.NoArgs,
		RunE:    c.withSession(list),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List unread notifications, newest first",
			Args:  cobra.NoArgs,
			RunE:  c.withSession(list),
		},
		&cobra.Command{
			Use:   "all",
			Short: "List every notification, read ones included",
			Args:  cobra.NoArgs,
			RunE: c.withSession(func(ctx context.Context, a *App, _ []string) error {
				all, err := a.NewInbox().All(ctx)
				if err != nil {
					return err
				}
				c.printNotifications(a, all, "no notifications")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "read ID",
			Short: "Mark one notification as read",
			Args:  cobra.ExactArgs(1),
			RunE: c.withSession(func(ctx context.Context, a *App, args []string) error {
				if err := a.NewInbox().MarkRead(ctx, v1.ID(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "marked %s as read\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "read-all",
			Short: "Mark every notification as read",
			Args:  cobra.NoArgs,
			RunE: c.withSession(func(ctx context.Context, a *App, _ []string) error {
				if err := a.NewInbox().MarkAllRead(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.stdout, "all notifications marked as read")
				return nil
			}),
		},
	)
	return cmd
}

func (c *cli) printNotifications(a *App, list []v1.Notification, empty string) {
	if len(list) == 0 {
		fmt.Fprintln(c.stdout, empty)
		return
	}
	now := c.now()
	for _, n := range list {
		writeNotification(c.stdout, now, a.Config().Locale, n)
	}
}

func (c *cli) watchCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they arrive",
		Long: "Print notifications as they arrive. The stream follows the session: it stops when " +
			"the session ends. DAYCHECK_POLL_SCHEDULE sets the fallback unread poll.",
		Args: cobra.NoArgs,
		RunE: c.withSession(func(ctx context.Context, a *App, _ []string) error {
			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, a, metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			locale := a.Config().Locale
			w := a.NewWatcher(func(n v1.Notification) {
				writeNotification(c.stdout, c.now(), locale, n)
			})

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			// The session ending (logout or a failed refresh) ends the command.
			unsubscribe := a.Sessions().Subscribe(func(s session.Snapshot) {
				if !s.IsAuthenticated() {
					cancel()
				}
			})
			defer unsubscribe()

			u := a.Sessions().CurrentUser()
			fmt.Fprintf(c.stdout, "watching notifications for %s (ctrl-c to stop)\n", displayUser(u.Name, u.Email))
			return w.Run(ctx)
		}),
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	return cmd
}

// serveMetrics exposes the client registry on /metrics until stop is called.
func serveMetrics(ctx context.Context, a *App, addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := a.log
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics.serve.fail", "err", err)
		}
	}()
	log.Info("metrics.start", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
