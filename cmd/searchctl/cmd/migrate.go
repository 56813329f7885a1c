package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utafrali/storefront-search/internal/config"
	"github.com/utafrali/storefront-search/migrations"
	"github.com/utafrali/storefront-search/pkg/database"
	"github.com/utafrali/storefront-search/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending PostgreSQL migrations using the POSTGRES_* environment
of the search service. Safe to run while replicas start: migrations are
serialized by an advisory lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter("searchctl", cfg.LogLevel, cmd.ErrOrStderr())

			pool, err := database.NewPostgresPool(cmd.Context(), &cfg.Postgres, log)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			if err := database.RunMigrations(cmd.Context(), pool, migrations.FS, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
