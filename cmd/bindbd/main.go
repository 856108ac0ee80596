// Package main contains the bindbd daemon: the HTTP front end over the
// record store, wired with cobra.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reajuria/bindb/internal/config"
	"github.com/reajuria/bindb/internal/database"
	"github.com/reajuria/bindb/internal/logging"
	"github.com/reajuria/bindb/internal/metrics"
	"github.com/reajuria/bindb/internal/server"
	"github.com/reajuria/bindb/internal/table"
)

const version = "1.0.0"

type serveFlags struct {
	configFile string
	addr       string
	storage    string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "bindbd",
		Short: "Embedded key-addressed record store with an HTTP API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	cmd.Flags().StringVar(&flags.configFile, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&flags.storage, "storage", "", "base storage directory (overrides config)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("bindbd " + version)
		},
	}
}

func runServe(flags serveFlags) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.addr != "" {
		cfg.Server.Addr = flags.addr
	}
	if flags.storage != "" {
		cfg.Storage.Path = flags.storage
	}

	logger, closeLogs := logging.Setup(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.SeqURL)
	defer closeLogs()

	m, err := metrics.NewRegistry()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	registry := database.NewRegistry(cfg.Storage.Path, table.Options{
		CacheCapacity:    cfg.Table.CacheCapacity,
		BufferMaxRecords: cfg.Table.BufferMaxRecords,
		BufferMaxBytes:   cfg.Table.BufferMaxBytes,
		Logger:           logger,
		Metrics:          m,
	})
	defer func() {
		if err := registry.CloseAll(); err != nil {
			logger.Error("shutdown close failed", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting bindbd",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Path),
	)
	router := server.NewRouter(registry, m, version)
	return server.Serve(ctx, cfg.Server.Addr, router)
}
