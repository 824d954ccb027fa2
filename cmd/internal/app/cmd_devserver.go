package app

import (
	"daycheck/cmd/internal/devserver"
	"daycheck/cmd/security/password"

	"github.com/spf13/cobra"
)

func (c *cli) devserverCommand() *cobra.Command {
	var addr, dbPath string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local DayCheck backend for development",
		Long: "Run a local DayCheck backend on SQLite. It is configured by DAYCHECK_DEV_* variables; " +
			"verification codes are logged and served on GET /api/dev/verifications instead of emailed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := c.config()
			if err != nil {
				return err
			}
			log := NewLogger(appCfg.LogLevel, appCfg.LogFormat)

			cfg, err := devserver.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			pw, err := password.FromEnv()
			if err != nil {
				return err
			}

			srv, err := devserver.New(cmd.Context(), cfg,
				devserver.WithLogger(log),
				devserver.WithPasswordConfig(pw),
			)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DAYCHECK_DEV_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file; empty keeps everything in memory")
	return cmd
}
