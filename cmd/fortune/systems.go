package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/plugins"
	"fortuneteller/pkg/termui"
)

type systemInfo struct {
	fortune.Descriptor
	Inputs []fortune.InputField `json:"inputs"`
}

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "List the enabled divination systems and their inputs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pm := loadPlugins(cfg)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out := make([]systemInfo, 0, len(pm.Names()))
			for _, d := range pm.InfoList() {
				sys, _ := pm.Get(d.Name)
				out = append(out, systemInfo{Descriptor: d, Inputs: sys.RequiredInputs()})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		printer, err := termui.NewPrinter(os.Stdout)
		if err != nil {
			return err
		}
		printer.Systems(pm.InfoList())
		for _, le := range pm.LoadErrors() {
			fmt.Printf("⚠️  %v\n", le)
		}
		return nil
	},
}

// loadPlugins registers the enabled built-in systems. It needs no LLM credentials.
func loadPlugins(cfg *config.Manager) *plugin.Manager {
	pm := plugin.NewManager(plugin.WithEnabled(cfg.IsPluginEnabled))
	pm.LoadAll(plugins.Builtin(plugins.OptionsFromConfig(cfg)))
	pm.Seal()
	return pm
}

func init() {
	rootCmd.AddCommand(systemsCmd)
	systemsCmd.Flags().Bool("json", false, "Print systems and input fields as JSON")
}
