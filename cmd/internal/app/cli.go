package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"daycheck/cmd/internal/auth/session"

	"github.com/spf13/cobra"
)

// ErrNotLoggedIn is returned by commands that need a session when none is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// cli holds the state shared by every command of one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	now    func() time.Time

	envFile   string
	apiURL    string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the daycheck command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, now: time.Now}

	root := &cobra.Command{
		Use:           "daycheck",
		Short:         "DayCheck client: session, notifications and recurring schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.envFile, "env-file", ".env", "dotenv file read before the environment")
	pf.StringVar(&c.apiURL, "api-url", "", "backend base URL (overrides DAYCHECK_API_URL)")
	pf.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (overrides DAYCHECK_LOG_LEVEL)")
	pf.StringVar(&c.logFormat, "log-format", "", "json, text or pretty (overrides DAYCHECK_LOG_FORMAT)")

	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.refreshCommand(),
		c.registerCommand(),
		c.verifyCommand(),
		c.notificationsCommand(),
		c.watchCommand(),
		c.schedulesCommand(),
		c.devserverCommand(),
	)
	return root
}

// config reads the environment and applies the persistent flag overrides.
func (c *cli) config() (Config, error) {
	cfg, err := readConfig(c.envFile)
	if err != nil {
		return Config{}, err
	}
	if c.apiURL != "" {
		cfg.APIURL = c.apiURL
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	return cfg, cfg.Validate()
}

type appFunc func(ctx context.Context, a *App, args []string) error

// withApp builds the App for one command and closes it afterwards.
// With restore set the persisted session is loaded first.
func (c *cli) withApp(restore bool, fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := c.config()
		if err != nil {
			return err
		}
		a, err := New(ctx, cfg, NewLogger(cfg.LogLevel, cfg.LogFormat))
		if err != nil {
			return err
		}
		defer a.Close()

		if restore {
			a.Initialize(ctx)
		}
		return fn(ctx, a, args)
	}
}

// withSession is withApp for commands that need an authenticated user.
func (c *cli) withSession(fn appFunc) func(*cobra.Command, []string) error {
	return c.withApp(true, func(ctx context.Context, a *App, args []string) error {
		snap := a.Sessions().Snapshot()
		switch {
		case snap.IsAuthenticated():
			return fn(ctx, a, args)
		case snap.State == session.StateSessionExpired:
			return errors.New(a.Sessions().Messages().SessionExpired)
		default:
			return ErrNotLoggedIn
		}
	})
}

// secret returns v, or the first line of stdin when v is empty.
func (c *cli) secret(v, what string) (string, error) {
	if v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", what, err)
		}
		return "", fmt.Errorf("%s is required (flag or stdin)", what)
	}
	return line, nil
}

func (c *cli) result(res session.Result) error {
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.stdout, res.Message)
	return nil
}
