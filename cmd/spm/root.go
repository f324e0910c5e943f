package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "spm",
	Short: "Source-based package manager apply engine",
	Long: `spm applies a resolved set of package actions against a local
installation: downloading sources, removing replaced packages, then
building and installing in dependency order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		versionCmd,
		applyCmd,
		planCmd,
	)
}
