package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perfana/perfana-dash/pkg/actions"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/config"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/notify"
	"github.com/perfana/perfana-dash/pkg/rpcserver"
	"github.com/perfana/perfana-dash/pkg/server"
	"github.com/perfana/perfana-dash/pkg/storage"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

// cfg is loaded before any command runs
var cfg *config.Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "perfana-dash",
		Short: "Perfana test run dashboard service and CLI",
		Long: `Perfana dashboard backend

Serves the test run views of a Perfana server over HTTP, websockets and gRPC,
and exposes the same views on the command line.`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringP("url", "u", "", "Perfana server URL")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Long:  "Connect to the Perfana server and serve the dashboard views over HTTP, websockets and gRPC.",
		RunE:  runServe,
	}
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (overrides config)")
	serveCmd.Flags().Int("rpc-port", -1, "gRPC port, 0 picks a free port (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCommands()...)
	rootCmd.AddCommand(cacheCommands()...)
	rootCmd.AddCommand(actionCommands()...)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	var err error
	if configFile != "" {
		cfg = config.NewConfig()
		if err = cfg.LoadFromFile(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.LoadFromEnv()
	} else if cfg, err = config.LoadConfig(); err != nil {
		return err
	}

	if u, _ := cmd.Flags().GetString("url"); u != "" {
		cfg.PerfanaURL = u
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}

	logger.SetLevel(cfg.LogLevel)
	logger.SetJSON(cfg.LogJSON)
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Port = port
	}
	if port, _ := cmd.Flags().GetInt("rpc-port"); port >= 0 {
		cfg.RPCPort = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Connecting to %s", cfg.PerfanaURL)
	p, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	notes := notify.NewCenter(cfg.NotificationTTL)
	dispatcher := actions.NewDispatcher(ctx, notes)

	subs := builder.NewSubscriptions(p.store, p.client)

	srv := server.NewServer(cfg, server.Options{
		Store:         p.store,
		Remote:        p.remote,
		Subscriptions: subs,
		Notifications: notes,
		Actions:       dispatcher,
	})
	rpc := rpcserver.NewServer(rpcserver.NewService(builder.NewBuilder(p.store, cfg, dispatcher.ReadOnly), subs))

	errs := make(chan error, 2)
	go func() { errs <- srv.Start() }()
	go func() { errs <- rpc.ListenAndServe(cfg.RPCPort) }()

	if cfg.CacheDB != "" && cfg.RetentionDays > 0 {
		go runRetention(ctx, cfg.CacheDB, cfg.RetentionDays)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case <-p.client.Done():
		err = fmt.Errorf("connection to Perfana lost: %w", p.client.Err())
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warnf("HTTP shutdown: %v", shutdownErr)
	}
	rpc.Stop()
	dispatcher.Wait()
	return err
}

// runRetention prunes the snapshot cache once at startup and then daily
func runRetention(ctx context.Context, path string, retentionDays int) {
	db, err := storage.NewDatabase(path)
	if err != nil {
		logger.Warnf("Snapshot cache unavailable: %v", err)
		return
	}
	defer db.Close()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := db.CleanupOldData(retentionDays, time.Now()); err != nil {
			logger.Warnf("Snapshot cleanup failed: %v", err)
		} else if n > 0 {
			logger.Infof("Removed %d expired snapshots", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
