package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/termui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse archived readings",
	Long:  `List, show and remove readings archived in storage.database.`,
}

// archiveFor opens the configured archive, refusing the in-memory default.
func archiveFor(cmd *cobra.Command) (*persistence.Archive, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return persistentArchive(cfg)
}

func persistentArchive(cfg *config.Manager) (*persistence.Archive, error) {
	storage, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	if storage.Database == "" || storage.Database == persistence.MemoryPath {
		return nil, errors.New("no archive configured: set storage.database or FORTUNE_DB")
	}
	return openArchive(cfg)
}

var historyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List archived readings, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		archive, err := archiveFor(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		f := persistence.Filter{}
		f.SystemName, _ = cmd.Flags().GetString("system")
		f.SessionID, _ = cmd.Flags().GetString("session")
		f.Kind, _ = cmd.Flags().GetString("kind")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			f.Since = time.Now().Add(-since)
		}

		records, err := archive.ListReadings(cmd.Context(), f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No readings found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSYSTEM\tKIND\tTOPIC\tMODEL\tTOKENS")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.SystemName, r.Kind, r.Topic,
				r.Model, r.PromptTokens+r.CompletionTokens)
		}
		return tw.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <reading-id>",
	Short: "Show one archived reading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFor(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		rec, err := archive.GetReading(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal reading: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printer, err := termui.NewPrinter(os.Stdout)
		if err != nil {
			return err
		}
		if rec.Kind == persistence.KindFollowup {
			return printer.Followup(rec.Result())
		}
		return printer.Reading(rec.Result(), "")
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove every archived reading of one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFor(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()

		for _, id := range args {
			n, err := archive.DeleteSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d readings of session '%s'\n", n, id)
		}
		return nil
	},
}

var historyEventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Replay the logged events of a session, chat turns included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		storage, err := cfg.Storage()
		if err != nil {
			return err
		}
		if storage.EventLogDir == "" {
			return errors.New("no event log configured: set storage.event_log_dir")
		}
		events, err := eventlog.SessionEvents(storage.EventLogDir, args[0])
		if err != nil {
			return err
		}
		printEvents(os.Stdout, events)
		return nil
	},
}

func printEvents(w io.Writer, events []eventlog.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}
	for _, ev := range events {
		stamp := ev.Time.Local().Format("2006-01-02 15:04:05")
		switch ev.Type {
		case eventlog.TypeChatUser:
			fmt.Fprintf(w, "[%s] 您: %s\n", stamp, ev.Text)
		case eventlog.TypeChatReply:
			fmt.Fprintf(w, "[%s] 霄占: %s\n", stamp, ev.Text)
		case eventlog.TypeFollowup:
			fmt.Fprintf(w, "[%s] %s 详解 %s (%s)\n", stamp, ev.SystemName, ev.Topic, ev.ReadingID)
		default:
			fmt.Fprintf(w, "[%s] %s %s (%s)\n", stamp, ev.SystemName, ev.Type, ev.ReadingID)
		}
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyEventsCmd)
	historyCmd.AddCommand(historyLsCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRmCmd)

	historyLsCmd.Flags().String("system", "", "Only readings of this system")
	historyLsCmd.Flags().String("session", "", "Only readings of this session")
	historyLsCmd.Flags().String("kind", "", "reading or followup")
	historyLsCmd.Flags().Int("limit", 20, "Maximum number of rows")
	historyLsCmd.Flags().Duration("since", 0, "Only readings newer than this, e.g. 72h")
	historyShowCmd.Flags().Bool("json", false, "Print the raw record as JSON")
}
