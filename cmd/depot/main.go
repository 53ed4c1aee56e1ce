package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"depot/internal/config"
	"depot/internal/depot"
	"depot/internal/store"
)

// newStore constructs the configured object-store backend.
func newStore(ctx context.Context, cfg config.Config) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), func() error { return nil }, nil

	case config.BackendLocal:
		absDataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data directory: %w", err)
		}
		local, err := store.NewLocalStore(absDataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("create local store: %w", err)
		}
		return local, local.Close, nil

	case config.BackendS3:
		s3, err := store.NewMinioStore(ctx, store.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create s3 store: %w", err)
		}
		return s3, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func Run(ctx context.Context) error {

	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	objectStore, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	server, err := depot.NewServer(depot.Config{
		Store:              objectStore,
		MultipartThreshold: cfg.MultipartThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to create depot server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting Depot HTTP server", "addr", cfg.Listen, "backend", cfg.Backend)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	slog.Info("Depot started")
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Depot exited with error", "error", err)
		os.Exit(1)
	}
}
