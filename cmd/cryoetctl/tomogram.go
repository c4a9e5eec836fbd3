package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// tomogramCmd represents the tomogram command
var tomogramCmd = &cobra.Command{
	Use:   "tomogram",
	Short: "Manage stored tomograms",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'tomogram' requires a subcommand (delete)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(exitFailure)
	},
}

func init() {
	rootCmd.AddCommand(tomogramCmd)
}
