package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/httpapi"
	"fortuneteller/pkg/logx"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/session"
	"fortuneteller/pkg/session/memory"
	"fortuneteller/pkg/session/redis"
	"fortuneteller/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves readings, follow-ups and chat over a JSON API. Sessions live in memory or
in Redis (session.backend); readings are archived to storage.database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		srvSettings, err := a.cfg.Server()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			srvSettings.Addr = addr
		}

		store, err := sessionStore(a.cfg)
		if err != nil {
			return err
		}
		if a.scanner != nil {
			store = session.Redacting(store, a.scanner)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		writer := persistence.NewWriter(a.archive, 0)
		go writer.Run(context.WithoutCancel(ctx))
		defer writer.Close()

		opts := []httpapi.Option{
			httpapi.WithArchive(a.archive, writer),
			httpapi.WithVersion(version.Version),
		}
		if srvSettings.MetricsEnabled {
			opts = append(opts, httpapi.WithMetrics(a.registry))
		}
		if a.events != nil {
			opts = append(opts, httpapi.WithEventLog(a.events))
		}
		srv := httpapi.New(a.plugins, a.llm, store, opts...)

		fmt.Printf("Serving %d systems: %v\n", len(a.plugins.Names()), a.plugins.Names())
		if err := srv.ListenAndServe(ctx, srvSettings.Addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		fmt.Println("Fortune server stopped gracefully")
		return nil
	},
}

func sessionStore(cfg *config.Manager) (session.Store, error) {
	s, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	switch s.Backend {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		if s.RedisAddr == "" {
			return nil, fmt.Errorf("session.redis_addr is required for the redis backend")
		}
		logx.Infof("sessions stored in redis at %s (ttl %s)", s.RedisAddr, s.TTL)
		return redis.New(s.RedisAddr, s.RedisPassword, s.RedisDB,
			redis.WithTTL(s.TTL), redis.WithPrefix(s.Prefix)), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", s.Backend)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
}
