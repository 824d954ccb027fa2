package app

import (
	"context"
	"errors"
	"fmt"

	"daycheck/cmd/internal/auth/session"

	"github.com/spf13/cobra"
)

func (c *cli) loginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: c.withApp(false, func(ctx context.Context, a *App, _ []string) error {
			pw, err := c.secret(password, "password")
			if err != nil {
				return err
			}
			m := a.Sessions()
			if !m.Login(ctx, email, pw) {
				return errors.New(m.Err())
			}
			u := m.CurrentUser()
			fmt.Fprintf(c.stdout, "logged in as %s\n", displayUser(u.Name, u.Email))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password; read from stdin when omitted")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: c.withApp(false, func(_ context.Context, a *App, _ []string) error {
			a.Sessions().Logout()
			fmt.Fprintln(c.stdout, "logged out")
			return nil
		}),
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: c.withSession(func(_ context.Context, a *App, _ []string) error {
			u := a.Sessions().CurrentUser()
			fmt.Fprintf(c.stdout, "%s\t%s\t%s\n", u.ID, u.Email, u.Name)
			return nil
		}),
	}
}

func (c *cli) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token",
		Long:  "Exchange the stored refresh token for a new access token. A rejected refresh token logs the session out.",
		Args:  cobra.NoArgs,
		RunE: c.withApp(false, func(ctx context.Context, a *App, _ []string) error {
			if !a.Sessions().RefreshToken(ctx) {
				return errors.New(a.Sessions().Messages().SessionExpired)
			}
			fmt.Fprintln(c.stdout, "token refreshed")
			return nil
		}),
	}
}

func (c *cli) registerCommand() *cobra.Command {
	var in session.Signup
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: "Create an account. With --code the emailed verification code is checked first " +
			"and the account is only created when it is accepted.",
		Args: cobra.NoArgs,
		RunE: c.withApp(false, func(ctx context.Context, a *App, _ []string) error {
			pw, err := c.secret(in.Password, "password")
			if err != nil {
				return err
			}
			in.Password = pw
			if in.Code != "" {
				return c.result(a.Sessions().RegisterVerified(ctx, in))
			}
			return c.result(a.Sessions().Register(ctx, in.Email, in.Password, in.Name))
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&in.Email, "email", "e", "", "account email")
	f.StringVarP(&in.Password, "password", "p", "", "password; read from stdin when omitted")
	f.StringVarP(&in.Name, "name", "n", "", "display name")
	f.StringVar(&in.Code, "code", "", "verification code emailed by \"verify send\"")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Email verification",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "send EMAIL",
			Short: "Email a verification code",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(false, func(ctx context.Context, a *App, args []string) error {
				return c.result(a.Sessions().SendVerification(ctx, args[0]))
			}),
		},
		&cobra.Command{
			Use:   "code EMAIL CODE",
			Short: "Confirm an emailed code",
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(false, func(ctx context.Context, a *App, args []string) error {
				return c.result(a.Sessions().VerifyEmail(ctx, args[0], args[1]))
			}),
		},
		&cobra.Command{
			Use:   "token TOKEN",
			Short: "Confirm the token of an email link",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(false, func(ctx context.Context, a *App, args []string) error {
				return c.result(a.Sessions().VerifyToken(ctx, args[0]))
			}),
		},
	)
	return cmd
}

func displayUser(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
