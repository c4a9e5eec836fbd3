package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryoetdb/cryoetdb/pkg/config"
)

// configurationShowCmd represents the configuration show command
var configurationShowCmd = &cobra.Command{
	Use:   "show [attribute]",
	Short: "Show pipeline settings and where each one came from",
	Long: `Show pipeline settings and where each one came from: default, the
config file (/etc/cryoet/cryoet.yml, or CRYOET_CONFIG_PATH) or the
environment. Secret values such as vault_token are masked.

With an attribute name only that value is printed, which is handy in scripts.

Example:
  cryoetctl configuration show
  cryoetctl configuration show --output json
  cryoetctl configuration show data_dir`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			printError("Failed to load configuration: %v", err)
			os.Exit(exitFailure)
		}

		if len(args) == 1 {
			err = showAttribute(cfg, args[0])
		} else {
			err = showConfiguration(cfg, output)
		}
		if err != nil {
			printError("%v", err)
			os.Exit(exitFailure)
		}
	},
}

func init() {
	configurationCmd.AddCommand(configurationShowCmd)
	configurationShowCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func showAttribute(cfg *config.Config, name string) error {
	for _, attr := range cfg.Attributes() {
		if attr.Name == name {
			fmt.Println(attr.Value)
			return nil
		}
	}
	return fmt.Errorf("unknown configuration attribute %q", name)
}

func showConfiguration(cfg *config.Config, output string) error {
	switch output {
	case "json":
		out, err := cfg.FormatJSON()
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "text":
		fmt.Print(cfg.FormatText())
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}
