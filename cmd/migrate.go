package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/platform/database"
	"backoffice/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if _, err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			return fmt.Errorf("logger setup: %w", err)
		}
		log := logger.WithComponent("migrate")

		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer db.Close()

		applied, err := database.Migrate(cmd.Context(), db, migrations.FS)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) == 0 {
			log.Info().Msg("schema up to date")
			return nil
		}
		for _, name := range applied {
			log.Info().Str("file", name).Msg("migration applied")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
