package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywatch/internal/aggregator"
	"github.com/alfredjeanlab/paywatch/internal/authz"
	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/config"
	"github.com/alfredjeanlab/paywatch/internal/events"
	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/query"
	"github.com/alfredjeanlab/paywatch/internal/server"
	pwsync "github.com/alfredjeanlab/paywatch/internal/sync"
	"github.com/alfredjeanlab/paywatch/internal/telemetry"
)

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the paywatch server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		slog.SetDefault(logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("tracing shutdown error", "error", err)
			}
		}()

		// Watched sources and their classifiers.
		registry := classify.DefaultRegistry()
		applier := config.NewApplier(registry, config.LoadPlugin, logger)
		defer applier.Close()
		if err := applier.Apply(cfg.SourcesFile, cfg.PrimarySource); err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "error", err)
			}
		}()

		// Create event publisher.
		var publisher events.Publisher = &events.NoopPublisher{}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = events.NewAsyncPublisher(pub, cfg.PublishQueue, logger)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("events disabled (PAYWATCH_NATS_URL not set)")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "error", err)
			}
		}()

		// Pipeline.
		flag := &authz.Flag{}
		flag.Set(cfg.Authorized)
		bcast := broadcast.New(publisher, logger)
		pl := newPipeline(st, registry, bcast, logger, aggregator.WithTracerProvider(tp))
		ing := pl.ing
		qs := query.New(st, flag, logger)

		if err := pl.start(ctx); err != nil {
			logger.Warn("initial recompute incomplete", "error", err)
		}

		if cfg.ActiveTTL > 0 {
			pl.startReaper(ctx, cfg.ActiveTTL, cfg.ReapInterval)
			defer pl.stopReaper()
		}

		// Reload the sources file on change.
		if cfg.SourcesFile != "" {
			go func() {
				err := config.WatchSources(ctx, cfg.SourcesFile, config.DefaultDebounce, func() {
					if err := pl.reload(ctx, applier, cfg.SourcesFile, cfg.PrimarySource); err != nil {
						logger.Error("sources reload failed", "path", cfg.SourcesFile, "error", err)
					}
				}, logger)
				if err != nil {
					logger.Error("sources watcher stopped", "error", err)
				}
			}()
		}

		// Ingest from NATS.
		if cfg.NATSURL != "" && cfg.NATSIngest {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create ingest subscriber", "error", err)
			} else {
				consumer := ingest.NewConsumer(sub, ing, logger)
				go func() {
					if err := consumer.Run(ctx); err != nil {
						logger.Error("ingest subscriber error", "error", err)
					}
					sub.Close()
				}()
				logger.Info("nats ingest enabled")
			}
		}

		srv := server.New(ing, qs, flag, bcast, registry, logger)
		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()

		scheduler := startSync(ctx, cfg, st, logger)

		logger.Info("paywatch server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"store", cfg.Store,
			"primary", registry.Primary(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		logger.Info("HTTP server stopped")

		cancel()
		logger.Info("shutdown complete")
		return nil
	},
}

// startSync starts the backup scheduler when an interval and at least one
// destination are configured.
func startSync(ctx context.Context, cfg *config.Config, st pwsync.Lister, logger *slog.Logger) *pwsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []pwsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := pwsync.NewS3Destination(ctx,
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "error", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncFile != "" {
		dests = append(dests, pwsync.NewFileDestination(cfg.SyncFile))
		logger.Info("sync file destination enabled", "path", cfg.SyncFile)
	}
	if len(dests) == 0 {
		return nil
	}

	scheduler := pwsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
