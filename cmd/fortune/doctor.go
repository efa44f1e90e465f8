package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fortuneteller/pkg/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials, model hosts, storage and plugins",
	Long: `Runs the preflight checks for the current configuration: a credential or
reachability check for every model of the LLM chain, the session backend, the
archive and output directories, and the enabled plugins.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := unlockSecrets(cfg); err != nil {
			return err
		}

		results, err := preflight.Run(cmd.Context(), cfg, preflight.WithPlugins(loadPlugins(cfg)))
		if err != nil {
			return err
		}
		fmt.Print(preflight.FormatResults(results))
		fmt.Println(results.Summary)
		if !results.Passed {
			return errors.New("preflight checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
