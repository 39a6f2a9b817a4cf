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

	"github.com/JonMunkholm/csvbind/internal/config"
	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/JonMunkholm/csvbind/internal/importer"
	"github.com/JonMunkholm/csvbind/internal/logging"
	"github.com/JonMunkholm/csvbind/internal/schema"
	"github.com/JonMunkholm/csvbind/internal/schemafile"
	"github.com/JonMunkholm/csvbind/internal/sink"
	"github.com/JonMunkholm/csvbind/internal/web"
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

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := core.NewCatalog(nil)
	if err := schema.Register(catalog); err != nil {
		logger.Error("failed to register built-in schemas", "error", err)
		os.Exit(1)
	}
	loaded, err := schemafile.RegisterDir(catalog, cfg.Schema.Dir)
	if err != nil {
		logger.Error("failed to load schema files", "dir", cfg.Schema.Dir, "error", err)
		os.Exit(1)
	}
	logger.Info("schemas registered", "count", catalog.Count(), "from_files", len(loaded))

	open, closeSink, err := openSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open sink", "driver", cfg.Sink.Driver, "error", err)
		os.Exit(1)
	}
	defer closeSink()

	if cfg.Import.Dir != "" {
		im := importer.New(
			core.NewEngine(cfg.EngineOptions(), catalog, logger),
			open,
			importer.Config{
				Dir:       cfg.Import.Dir,
				Schema:    cfg.Import.Schema,
				BatchSize: cfg.Engine.BatchSize,
				Settle:    cfg.Import.Settle,
			},
			logger,
		)
		go func() {
			var err error
			if cfg.Import.Watch {
				err = im.Watch(ctx)
			} else {
				err = im.Start(ctx, cfg.Import.Schedule)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("importer stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(cfg, catalog, open, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// openSink connects the configured sink. The returned func releases it.
func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink.Opener, func(), error) {
	switch strings.ToLower(cfg.Sink.Driver) {
	case config.SinkPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}

		if u, err := url.Parse(cfg.Database.URL); err == nil {
			logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		}
		return sink.PostgresOpener(pool), pool.Close, nil

	case config.SinkSQLite:
		db, err := sink.OpenSQLite(cfg.Sink.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite sink", "path", cfg.Sink.SQLitePath)
		return sink.SQLiteOpener(db), func() { db.Close() }, nil

	default:
		return sink.None, func() {}, nil
	}
}
