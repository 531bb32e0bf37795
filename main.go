// Command toolbox serves the image toolbox API and runs its maintenance
// tasks: offline variant batches, migrations, admin approval and the OS
// service.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"toolbox_backend/core"
)

var envFile string

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "toolbox",
	Short: "Image toolbox backend",
	Long: `toolbox serves the image toolbox HTTP API.

Without a subcommand it starts the server, the same as "toolbox serve".
Configuration comes from the environment and an optional .env file.`,
	Version:           fmt.Sprintf("%s (commit %s, built %s)", core.Version, core.GitCommit, core.BuildTime),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadEnvFile,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(serveCmd, variantsCmd, migrateCmd, adminCmd, serviceCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// loadEnvFile loads the dotenv file. A missing default file is fine; a
// missing explicit one is an error.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// exitCodeFor maps configuration problems to ExitCodeConfig.
func exitCodeFor(err error) int {
	var cfgErr *core.ConfigError
	if errors.As(err, &cfgErr) {
		return core.ExitCodeConfig
	}
	return core.ExitCodeError
}
