package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"otc-exchange/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back postgres schema migrations.",
}

var (
	databaseURL   string
	migrationsDir string
	downSteps     int
)

func init() {
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	migrateCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "Directory holding the migration files")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: withStore(func(cmd *cobra.Command, s *db.Store) error {
			if err := s.MigrateDown(migrationsDir, downSteps); err != nil {
				return err
			}
			log.WithField("steps", downSteps).Info("migrations rolled back")
			return nil
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withStore(func(cmd *cobra.Command, s *db.Store) error {
				if err := s.Migrate(migrationsDir); err != nil {
					return err
				}
				log.Info("migrations applied")
				return nil
			}),
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: withStore(func(cmd *cobra.Command, s *db.Store) error {
				v, dirty, err := s.MigrationVersion(migrationsDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", v, dirty)
				return nil
			}),
		},
	)
}

func withStore(fn func(cmd *cobra.Command, s *db.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if databaseURL == "" {
			return fmt.Errorf("--database-url or DATABASE_URL required")
		}
		s, err := db.Open(databaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s)
	}
}
