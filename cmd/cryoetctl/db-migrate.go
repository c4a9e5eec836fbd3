package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// dbMigrateCmd represents the db migrate command
var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create and/or upgrade the database schema",
	Long: `Create and/or upgrade the database schema.

This command runs all pending database migrations to bring the schema
up to date. Credentials are read from the secret store, so the deployment
must have been bootstrapped.

Example:
  cryoetctl db migrate`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		a.exit(runMigrations(cmd.Context(), a))
	},
}

var dbMigrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback database migrations",
	Long: `Rollback database migrations.

This command rolls back the specified number of migrations (default: 1).

Example:
  cryoetctl db down      # Rollback 1 migration
  cryoetctl db down 3    # Rollback 3 migrations`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		steps := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				printError("steps must be a positive integer: %s", args[0])
				os.Exit(exitFailure)
			}
			steps = n
		}

		a := mustApp(cmd)
		a.exit(runMigrationsDown(cmd.Context(), a, steps))
	},
}

var dbMigrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current migration version",
	Long:  `Show the current database migration version.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		a.exit(showMigrationStatus(cmd.Context(), a))
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbMigrateDownCmd)
	dbCmd.AddCommand(dbMigrateStatusCmd)
}

func migrationURL(ctx context.Context, a *app) (string, error) {
	bundle, err := a.credentials(ctx)
	if err != nil {
		return "", err
	}
	return a.dbConfig(bundle).MigrationURL(), nil
}

func runMigrations(ctx context.Context, a *app) error {
	dbURL, err := migrationURL(ctx, a)
	if err != nil {
		return err
	}
	version, err := migrateUp(dbURL, a.logger)
	if err != nil {
		return err
	}
	printOK("Schema at version %d", version)
	return nil
}

func runMigrationsDown(ctx context.Context, a *app, steps int) error {
	dbURL, err := migrationURL(ctx, a)
	if err != nil {
		return err
	}
	fmt.Printf("Rolling back %d migration(s)...\n", steps)
	version, err := migrateDown(dbURL, steps, a.logger)
	if err != nil {
		return err
	}
	printOK("Rolled back to version %d", version)
	return nil
}

func showMigrationStatus(ctx context.Context, a *app) error {
	dbURL, err := migrationURL(ctx, a)
	if err != nil {
		return err
	}
	version, dirty, ok, err := migrationStatus(dbURL, a.logger)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No migrations have been applied yet")
		return nil
	}
	fmt.Printf("Current version: %d\n", version)
	if dirty {
		printWarn("Database is in a dirty state")
	}
	return nil
}
