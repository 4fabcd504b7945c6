// Package cmd is the composition root: it builds every dependency exactly
// once from config.Config and wires it into the subcommands below,
// grounded on the teacher's src/cmd package layout (one file per
// subcommand, a shared rootCmd) but using explicit constructor injection
// instead of the teacher's package-level global variables (Design Note §9).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aqua-router",
	Short: "WhatsApp catalog-sync and inquiry bot for a bottled-water delivery service",
}

// Execute runs the CLI. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
