package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
)

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the SQL schema migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "directory holding the *.sql migration files")

	withMigrator := func(run func(m *migrate.Migrate) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := database.NewMigrator(cfg.DB, dir)
			if err != nil {
				return err
			}
			defer func() {
				if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
					cmd.PrintErrf("closing migrator: %v, %v\n", srcErr, dbErr)
				}
			}()
			return run(m)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate) error {
			if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("No change: schema is up to date")
				return nil
			} else if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Println("Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the last migration, or the given number of steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate version: %w", err)
			}
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			fmt.Printf("Schema version %d%s\n", version, suffix)
			return nil
		}),
	})

	return cmd
}
