package main

import (
	"errors"

	"github.com/spf13/cobra"

	"toolbox_backend/core"
	"toolbox_backend/core/validation"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the startup checks and exit",
	Long: `Validate the configuration, the data directory, the database and the
optional Redis and mirror settings without starting the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig()
		if err != nil {
			return err
		}
		result := validation.NewValidationSuite("Startup checks", validation.StartupChecks(cfg)...).
			WithOutput(cmd.OutOrStdout()).
			Validate(cmd.Context())
		if !result.Success {
			if err := result.GetFirstError(); err != nil {
				return err
			}
			return errors.New(result.Summary())
		}
		return nil
	},
}
