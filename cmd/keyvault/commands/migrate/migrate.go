package migrate

import (
	"fmt"

	"github.com/ncobase/keyvault/config"
	"github.com/ncobase/keyvault/internal/server"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/spf13/cobra"
)

// NewCommand creates the migrate command. Schema creation is idempotent, so
// running it against an existing database only adds what is missing.
func NewCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Args:    cobra.NoArgs,
		Aliases: []string{"m"},
		Short:   "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			log := logger.StdLogger()
			cleanup, err := log.Init(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to init logger: %v", err)
			}
			defer cleanup()

			if err := server.Migrate(cfg, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}
