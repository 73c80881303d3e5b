package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"freightflow/portal/internal/app"
	"freightflow/portal/internal/migrate"
	"freightflow/portal/internal/observability"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the directory database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withDB(func(_ *cobra.Command, db *sql.DB) error {
				return migrate.Up(db, observability.NewLogger(os.Getenv("LOG_LEVEL")))
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: withDB(func(_ *cobra.Command, db *sql.DB) error {
				return migrate.Down(db)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied and latest schema versions",
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
				st, err := migrate.CurrentStatus(db)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "version: %d\nlatest:  %d\ndirty:   %t\n", st.Version, st.Latest, st.Dirty)
				if st.Pending() {
					fmt.Fprintln(out, "pending migrations")
				}
				return nil
			}),
		},
	)
	return cmd
}

func withDB(run func(cmd *cobra.Command, db *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return errors.New("DATABASE_URL is required")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, err := app.OpenDatabase(ctx, dsn, 30*time.Second)
		if err != nil {
			return err
		}
		defer db.Close()
		return run(cmd, db)
	}
}
