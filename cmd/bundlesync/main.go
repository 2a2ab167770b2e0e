// bundlesync keeps a local view of bundle state in sync with the
// task-execution backend and serves it, with keyword search, over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/syntrixbase/bundlesync/internal/config"
	"github.com/syntrixbase/bundlesync/internal/logging"
	"github.com/syntrixbase/bundlesync/internal/services"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("bundlesync", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (default: config/config.yml)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		cfg.Logging.Console.Level = logLevel
		cfg.Logging.File.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := logging.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}()

	// 2. Initialize Service Manager
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := services.NewManager(cfg, services.Options{})
	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	// 3. Start Services
	slog.Info("Starting bundlesync", "config", configPath)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	// 4. Wait for Shutdown
	<-ctx.Done()
	slog.Info("Shutting down services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	slog.Info("All services stopped")
	return nil
}
