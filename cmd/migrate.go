package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatdesk/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres ticket schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := repository.OpenPostgres(cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("migrate: ok", zap.String("host", cfg.DB.Host), zap.String("database", cfg.DB.Database))
	return nil
}
