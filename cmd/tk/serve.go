package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alfredjeanlab/tracker/internal/config"
	"github.com/alfredjeanlab/tracker/internal/events"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/indexer"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
	"github.com/alfredjeanlab/tracker/internal/server"
	"github.com/alfredjeanlab/tracker/internal/store/postgres"
	trackersync "github.com/alfredjeanlab/tracker/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the tracker HTTP and gRPC servers",
	GroupID: "system",
	// No client connection for the server itself.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (TRACKER_NATS_URL not set)")
		}

		// Build the search index from the store before accepting requests.
		idx := index.New()
		ix := indexer.New(store, idx, cfg.IndexRecoveryRate, logger)
		if _, err := ix.IndexAll(context.Background()); err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		searchSvc := search.NewService(
			query.NewFactory(store, cfg.TimeZone, logger),
			search.NewExecutor(idx),
			logger,
		)
		trackerServer := server.NewTrackerServer(store, searchSvc, ix, publisher, logger)
		grpcServer := server.NewGRPCServer(trackerServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           trackerServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var recovery *indexer.Scheduler
		if cfg.IndexRecoveryInterval > 0 {
			recovery = indexer.NewScheduler(ix, cfg.IndexRecoveryInterval, logger)
			recovery.Start()
			logger.Info("index recovery started", "interval", cfg.IndexRecoveryInterval, "rate", cfg.IndexRecoveryRate)
		}

		var syncScheduler *trackersync.Scheduler
		if cfg.SyncInterval > 0 {
			var dests []trackersync.Destination

			if cfg.SyncS3Bucket != "" {
				s3Dest, err := trackersync.NewS3Destination(
					context.Background(),
					cfg.SyncS3Bucket,
					cfg.SyncS3Key,
					cfg.SyncS3Region,
					cfg.SyncS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 sync destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
				}
			}

			if cfg.SyncGitRepo != "" {
				dests = append(dests, trackersync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
				logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
			}

			if len(dests) > 0 {
				syncScheduler = trackersync.NewScheduler(store, dests, cfg.SyncInterval, logger)
				syncScheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		// Index maintenance requests and other nodes' issue changes arrive
		// over NATS.
		var listenCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create event subscriber", "err", err)
			} else {
				var listenCtx context.Context
				listenCtx, listenCancel = context.WithCancel(context.Background())
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					if err := ix.Listen(listenCtx, sub); err != nil {
						logger.Error("index listener error", "err", err)
					}
				}()
				go func() {
					defer wg.Done()
					if err := trackerServer.RelayEvents(listenCtx, sub); err != nil {
						logger.Error("event relay error", "err", err)
					}
				}()
				go func() {
					wg.Wait()
					sub.Close()
				}()
			}
		}

		logger.Info("tracker server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"indexed", idx.Len(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if listenCancel != nil {
			listenCancel()
		}
		if syncScheduler != nil {
			syncScheduler.Stop()
			logger.Info("sync scheduler stopped")
		}
		if recovery != nil {
			recovery.Stop()
			logger.Info("index recovery stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
