package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolbox_backend/core"
	"toolbox_backend/db"
)

var dbPathFlag string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply, roll back or inspect the embedded schema migrations.

The server applies pending migrations at startup; these commands are for
upgrades run ahead of time and for recovery.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := databasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := db.MigrateUpFromPath(path); err != nil {
			return err
		}
		return printMigrationStatus(cmd, path)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default one step, \"all\" for every step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		path := databasePath()
		if err := db.MigrateDownFromPath(path, steps); err != nil {
			return err
		}
		return printMigrationStatus(cmd, path)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printMigrationStatus(cmd, databasePath())
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Mark a version as applied and clear the dirty flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		path := databasePath()
		if err := db.ForceVersionFromPath(path, version); err != nil {
			return err
		}
		return printMigrationStatus(cmd, path)
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database path (default $DATABASE_PATH or "+core.DefaultDatabasePath+")")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateForceCmd)
}

// databasePath resolves --db, then DATABASE_PATH, then the default.
func databasePath() string {
	if dbPathFlag != "" {
		return dbPathFlag
	}
	return core.GetEnvOrDefault("DATABASE_PATH", core.DefaultDatabasePath)
}

// parseSteps reads the optional down argument: a positive count or "all"
// (-1).
func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	if args[0] == "all" {
		return -1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("steps must be a positive number or \"all\", got %q", args[0])
	}
	return steps, nil
}

func printMigrationStatus(cmd *cobra.Command, path string) error {
	status, err := db.MigrationVersionFromPath(path)
	if err != nil {
		return err
	}
	c := color.New(color.FgGreen)
	if status.Dirty {
		c = color.New(color.FgYellow)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", path)
	c.Fprintln(cmd.OutOrStdout(), status.String())
	return nil
}
