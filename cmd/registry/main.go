package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schemahub/registry/internal/api"
	"github.com/schemahub/registry/internal/config"
	"github.com/schemahub/registry/internal/metrics"
	"github.com/schemahub/registry/internal/migrations"
	"github.com/schemahub/registry/internal/registry"
	avrofmt "github.com/schemahub/registry/internal/registry/formats/avro"
	protofmt "github.com/schemahub/registry/internal/registry/formats/protobuf"
	"github.com/schemahub/registry/internal/registry/store"
	"github.com/schemahub/registry/internal/server"
)

func main() {
	configPath := flag.String("config", "registry.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	defaultMode, err := registry.ParseMode(cfg.Registry.DefaultCompatibility)
	if err != nil {
		slog.Error("Invalid default compatibility mode", "value", cfg.Registry.DefaultCompatibility, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage
	st, err := openStore(cfg, defaultMode)
	if err != nil {
		slog.Error("Failed to initialize store", "type", cfg.Store.Type, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Initialize Formats
	formats := registry.NewFormatRegistry()
	formats.RegisterFormat(registry.FormatAvro, avrofmt.NewCanonicalizer(), avrofmt.NewChecker())
	formats.RegisterFormat(registry.FormatProtobuf, protofmt.NewCanonicalizer(), protofmt.NewChecker())

	// 4. Initialize Metrics
	var m *metrics.Metrics
	if cfg.Registry.Metrics {
		m = metrics.New()
	}

	// 5. Initialize Registry + API
	reg := registry.NewWithOptions(st, formats, cfg.Registry.CacheCapacity, m)
	apiSvc := api.NewService(reg)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), st, m, cfg.Server.Mode)
	apiSvc.RegisterRoutes(srv.Engine)

	// 6. Run until signalled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openStore builds the configured persistence backend. The postgres backend
// runs migrations first so table validation in the store constructor sees a
// fully provisioned schema.
func openStore(cfg *config.Config, defaultMode registry.Mode) (registry.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		return store.NewMemoryStore(defaultMode), nil
	case "file":
		return store.OpenFileStore(cfg.Store.Dir, defaultMode)
	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres for migrations: %w", err)
		}
		if err := migrations.Run(db, cfg.Store.AutoMigrate); err != nil {
			db.Close()
			return nil, err
		}
		db.Close()
		return store.NewPostgresStore(cfg.Store.DSN, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns, defaultMode)
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
