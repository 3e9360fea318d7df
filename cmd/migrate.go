package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL environment variable is required")
		}

		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := pool.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Println("Database is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
