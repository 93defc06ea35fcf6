package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ncobase/keyvault/cmd/keyvault/commands/migrate"
	"github.com/ncobase/keyvault/config"
	"github.com/ncobase/keyvault/internal/server"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/logging/observes"
	"github.com/ncobase/keyvault/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "keyvault",
		Short:         "Secrets and variables with workspace approvals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(
		NewServeCommand(&configFile),
		migrate.NewCommand(&configFile),
		NewVersionCommand(),
	)

	return rootCmd
}

// NewServeCommand creates the serve command
func NewServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}

			ver := version.GetVersionInfo().Version
			log := logger.StdLogger()
			log.SetVersion(ver)
			cleanup, err := log.Init(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to init logger: %v", err)
			}
			defer cleanup()

			if err := observes.NewSentry(observes.SentryOptionsFrom(cfg, ver)); err != nil {
				log.Warn(cmd.Context(), "Sentry disabled", "error", err)
			}
			defer observes.FlushSentry(2 * time.Second)

			var tc *config.Tracer
			if cfg.Observes != nil {
				tc = cfg.Observes.Tracer
			}
			shutdownTracer, err := observes.NewTracer(cmd.Context(), observes.TracerOptionFrom(cfg.AppName, ver, tc))
			if err != nil {
				log.Warn(cmd.Context(), "Tracer disabled", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()

			config.Watch(func(c *config.Config) {
				if c.Logger != nil {
					log.ApplyLevel(c.Logger.Level)
				}
			})

			srv, err := server.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetVersionInfo()
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), info.String())
				return nil
			}
			out, err := info.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
