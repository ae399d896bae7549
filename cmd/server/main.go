package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/fieldpipe/internal/artifacts"
	"github.com/JonMunkholm/fieldpipe/internal/config"
	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/lifecycle"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/reference"
	"github.com/JonMunkholm/fieldpipe/internal/schema"
	"github.com/JonMunkholm/fieldpipe/internal/store"
	"github.com/JonMunkholm/fieldpipe/internal/validation"
	"github.com/JonMunkholm/fieldpipe/internal/watcher"
	"github.com/JonMunkholm/fieldpipe/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := store.Migrate(cfg.Database.URL); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	st := store.NewStore(pool)
	if err := st.SeedErrorCatalog(ctx, core.FindingCodes); err != nil {
		slog.Error("failed to seed error catalog", "error", err)
		os.Exit(1)
	}

	schemas, err := loadSchemas(ctx, st, cfg)
	if err != nil {
		slog.Error("failed to load schema registry", "error", err)
		os.Exit(1)
	}

	refOpts := []reference.Option{
		reference.WithTimeout(cfg.Reference.Timeout),
		reference.WithHeader("data-partition-id", cfg.Reference.PartitionID),
	}
	if cfg.Reference.Token != "" {
		refOpts = append(refOpts, reference.WithBearerToken(cfg.Reference.Token))
	}
	refClient := reference.NewClient(cfg.Reference.BaseURL, refOpts...)

	sink, err := artifacts.NewSink(ctx, cfg.Artifacts)
	if err != nil {
		slog.Error("failed to create artifact sink", "error", err)
		os.Exit(1)
	}

	engine := validation.NewEngine(validation.BronzeRules(validation.DefaultFieldRules())...)
	fields := lifecycle.NewFieldProcessor(schemas, st, engine, refClient, sink, lifecycle.FieldConfig{
		BronzeTable:    cfg.Pipeline.BronzeTable,
		SilverTable:    cfg.Pipeline.SilverTable,
		IgnoreWarnings: cfg.Pipeline.IgnoreBronzeWarning,
		Reference: reference.Settings{
			CRSKind:   cfg.Reference.CRSKind,
			FieldKind: cfg.Reference.FieldKind,
			TargetCRS: cfg.Reference.TargetCRS,
		},
	})
	controller := lifecycle.NewController(st, map[core.DataKind]lifecycle.Processor{
		core.KindField: fields,
	})

	if err := os.MkdirAll(cfg.Watch.Dir, 0o755); err != nil {
		slog.Error("failed to create watch directory", "dir", cfg.Watch.Dir, "error", err)
		os.Exit(1)
	}
	detector := watcher.NewDetector(cfg.Watch.PollInterval, cfg.Watch.Stabilization, cfg.Watch.Abandonment)
	ingestor := watcher.NewIngestor(st, core.DataKind(strings.ToUpper(cfg.Watch.DataKind)))

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go watcher.Run(jobCtx, detector, ingestor, cfg.Watch.Dir)
	go controller.Run(jobCtx, cfg.Pipeline.PollInterval)

	server := web.NewServer(cfg, st, schemas)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// loadSchemas seeds the registry from the definitions file, when configured,
// and loads the catalog. The pipeline tables must be registered.
func loadSchemas(ctx context.Context, st *store.Store, cfg *config.Config) (*schema.Service, error) {
	svc := schema.NewService(st)

	if cfg.Pipeline.RegistryFile != "" {
		defs, err := schema.LoadDefinitions(cfg.Pipeline.RegistryFile)
		if err != nil {
			return nil, err
		}
		if err := svc.Seed(ctx, defs); err != nil {
			return nil, err
		}
	}

	if err := svc.Load(ctx); err != nil {
		return nil, err
	}
	for _, table := range []string{cfg.Pipeline.BronzeTable, cfg.Pipeline.SilverTable} {
		if _, err := svc.Describe(ctx, table); err != nil {
			return nil, err
		}
	}

	slog.Info("schema registry loaded", "tables", svc.Tables())
	return svc, nil
}
