package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/llm/connector"
	llmmetrics "fortuneteller/pkg/llm/middleware/metrics"
	"fortuneteller/pkg/logx"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/plugin"
	"fortuneteller/pkg/redact"
)

// envPassword unlocks the secrets file without a prompt.
const envPassword = "FORTUNE_PASSWORD"

var rootCmd = &cobra.Command{
	Use:   "fortune",
	Short: "霄占 - a divination engine backed by large language models",
	Long: `fortune computes BaZi charts, tarot spreads and zodiac horoscopes, then asks a
language model to interpret them. Run without a subcommand for the interactive reader.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logx.SetDebug(true)
		}
	},
	RunE: runRead,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Path to the YAML or JSON config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("provider", "", "Override llm.provider (openai, anthropic, google, ollama, mock)")
	rootCmd.PersistentFlags().String("model", "", "Override llm.model")
	addReadFlags(rootCmd)
}

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Manager
	plugins  *plugin.Manager
	registry *prometheus.Registry
	llm      *connector.Connector
	archive  *persistence.Archive
	events   *eventlog.Writer
	scanner  redact.Scanner
}

func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewManager(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Set("llm.provider", provider)
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Set("llm.model", model)
	}
	if app, err := cfg.App(); err == nil && app.Debug {
		logx.SetDebug(true)
	}
	return cfg, nil
}

// secretsDir keeps the encrypted secrets next to the config file.
func secretsDir(cfg *config.Manager) string {
	if cfg.Path() == "" {
		return "."
	}
	return filepath.Dir(cfg.Path())
}

// unlockSecrets decrypts the secrets file when present. The password comes from
// FORTUNE_PASSWORD or, on a terminal, from a prompt.
func unlockSecrets(cfg *config.Manager) error {
	dir := secretsDir(cfg)
	if !config.SecretsFileExists(dir) {
		return nil
	}
	password := os.Getenv(envPassword)
	if password == "" {
		if !stdinIsTerminal() {
			logx.Warnf("secrets file %s is locked; set %s to use it", config.SecretsPath(dir), envPassword)
			return nil
		}
		var err error
		if password, err = readPassword("🔑 Password for stored credentials: "); err != nil {
			return err
		}
	}
	if _, err := config.LoadSecrets(dir, password); err != nil {
		return fmt.Errorf("unlock secrets: %w", err)
	}
	return nil
}

// newApp builds the plugin manager, the LLM chain and the archive.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := unlockSecrets(cfg); err != nil {
		return nil, err
	}

	pm := loadPlugins(cfg)
	for _, le := range pm.LoadErrors() {
		logx.Warnf("plugin %s not loaded: %v", le.Name, le.Err)
	}

	settings, err := cfg.LLM()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateCredentials(settings); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	llm, err := connector.New(settings, connector.WithRecorder(llmmetrics.NewPrometheusRecorder(reg)))
	if err != nil {
		return nil, fmt.Errorf("create LLM connector: %w", err)
	}

	archive, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}

	scanner, err := newScanner(cfg)
	if err != nil {
		_ = archive.Close()
		return nil, err
	}

	events, err := openEventLog(cfg, scanner)
	if err != nil {
		_ = archive.Close()
		return nil, err
	}

	return &app{cfg: cfg, plugins: pm, registry: reg, llm: llm, archive: archive, events: events, scanner: scanner}, nil
}

// newScanner returns nil when privacy.redact is off.
func newScanner(cfg *config.Manager) (redact.Scanner, error) {
	p, err := cfg.Privacy()
	if err != nil {
		return nil, err
	}
	if !p.Redact {
		return nil, nil
	}
	s, err := redact.NewPatternScanner(time.Second, p.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("privacy.patterns: %w", err)
	}
	return s, nil
}

// openEventLog returns nil when storage.event_log_dir is unset.
func openEventLog(cfg *config.Manager, scanner redact.Scanner) (*eventlog.Writer, error) {
	storage, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	if storage.EventLogDir == "" {
		return nil, nil
	}
	var opts []eventlog.Option
	if scanner != nil {
		opts = append(opts, eventlog.WithRedaction(scanner))
	}
	w, err := eventlog.NewWriter(storage.EventLogDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return w, nil
}

func openArchive(cfg *config.Manager) (*persistence.Archive, error) {
	storage, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	archive, err := persistence.Open(storage.Database)
	if err != nil {
		return nil, fmt.Errorf("open reading archive: %w", err)
	}
	return archive, nil
}

func (a *app) Close() {
	if err := a.archive.Close(); err != nil {
		logx.Warnf("close archive: %v", err)
	}
	if err := a.events.Close(); err != nil {
		logx.Warnf("close event log: %v", err)
	}
}
