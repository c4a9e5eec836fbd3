package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cryoetdb/cryoetdb/pkg/config"
)

// configurationValidateCmd represents the configuration validate command
var configurationValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without contacting any service",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			printError("Invalid configuration: %v", err)
			os.Exit(exitFailure)
		}
		printOK("Configuration is valid (%s)", cfg.ConfigFilePath())
	},
}

func init() {
	configurationCmd.AddCommand(configurationValidateCmd)
}
