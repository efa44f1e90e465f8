package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"fortuneteller/pkg/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reading counts and token usage per system",
	Long: `Summarizes the reading archive. With --prometheus-url the live token counters
scraped from "fortune serve" are queried as well.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		archive, err := archiveFor(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		stats, err := archive.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Archive:")
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYSTEM\tREADINGS\tFOLLOW-UPS\tPROMPT\tCOMPLETION")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.SystemName, s.Readings, s.Followups, s.PromptTokens, s.CompletionTokens)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		url, _ := cmd.Flags().GetString("prometheus-url")
		if url == "" {
			return nil
		}
		q, err := metrics.NewQueryService(url)
		if err != nil {
			return err
		}
		fmt.Printf("\nPrometheus (%s):\n", url)
		tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYSTEM\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
		for _, s := range stats {
			byModel, err := q.GetSystemUsageByModel(cmd.Context(), s.SystemName)
			if err != nil {
				return fmt.Errorf("query %s usage: %w", s.SystemName, err)
			}
			for model, u := range byModel {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", s.SystemName, model, u.Requests, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
			}
		}
		return tw.Flush()
	},
}

// printUsage reports the token counters of this process.
func printUsage(w io.Writer, g prometheus.Gatherer, raw bool) error {
	usage, err := metrics.Gather(g)
	if err != nil {
		return err
	}
	for _, u := range usage {
		if u.Requests == 0 {
			continue
		}
		fmt.Fprintf(w, "📊 %s: %d 次请求, %d tokens (提示 %d / 生成 %d)\n",
			u.System, u.Requests, u.TotalTokens, u.PromptTokens, u.CompletionTokens)
	}
	if raw {
		return metrics.WriteText(w, g)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("prometheus-url", "", "Prometheus server scraping the fortune /metrics endpoint")
}
