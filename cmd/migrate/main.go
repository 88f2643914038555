package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"adminhub.org/internal/config"
	"adminhub.org/internal/obs"
	"adminhub.org/internal/store/pg"
)

func main() {
	var (
		dsn     string
		timeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or inspect the embedded database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv(config.EnvPrefix+"_DATABASE_DSN"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit")

	withDB := func(fn func(context.Context, *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("missing DSN: provide via --dsn or " + config.EnvPrefix + "_DATABASE_DSN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(ctx, db)
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, RunE: withDB(pg.Migrate)},
		&cobra.Command{Use: "down", Short: "Roll back the latest migration", Args: cobra.NoArgs, RunE: withDB(pg.MigrateDown)},
		&cobra.Command{Use: "status", Short: "Show migration status", Args: cobra.NoArgs, RunE: withDB(pg.MigrationStatus)},
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		obs.Logger().WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}
