package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fortuneteller/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fortune",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("fortune %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
