package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/faqgate/internal/mcp"
	"github.com/dshills/faqgate/internal/metrics"
)

const statusGaugeInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server on stdio.

On startup the last persisted snapshot is published, then the source is
synced. While serving, the source is re-synced every sync.interval and, with
sync.watch, whenever a markdown file changes. With metrics.addr set,
Prometheus metrics are served on /metrics.

MCP client configuration:
  {
    "mcpServers": {
      "faqgate": {
        "command": "/path/to/faqgate",
        "args": ["serve", "--config", "/path/to/faqgate.yaml"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if stats, err := app.syncer.WarmStart(ctx); err != nil {
		logger.Warn("warm start failed", zap.Error(err))
	} else if stats.Skipped {
		logger.Info("warm start skipped", zap.String("reason", stats.Reason))
	}
	if cfg.Sync.Source != "" {
		if _, err := app.syncer.Sync(ctx, false); err != nil {
			logger.Warn("initial sync failed", zap.Error(err))
		}
	} else {
		logger.Warn("no sync.source configured, serving persisted snapshot only")
	}

	server, err := mcp.NewServer(mcp.Deps{
		Pipeline:    app.pipeline,
		Suggestions: app.suggestions,
		Syncer:      app.syncer,
		Store:       app.store,
		Status:      app.status,
		Storage:     app.storage,
		Mode:        app.searcher.Mode().String(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Sync.Source != "" && cfg.Sync.Interval > 0 {
		g.Go(func() error { return ignoreCanceled(app.syncer.Run(gctx, cfg.Sync.Interval)) })
	}
	if cfg.Sync.Source != "" && cfg.Sync.Watch {
		g.Go(func() error {
			if err := app.syncer.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				// Periodic sync still covers changes.
				logger.Warn("source watch stopped", zap.Error(err))
			}
			return nil
		})
	}
	if app.status != nil {
		g.Go(func() error {
			ticker := time.NewTicker(statusGaugeInterval)
			defer ticker.Stop()
			for {
				app.metrics.SetStatusCacheSize(app.status.Size())
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	if cfg.Metrics.Addr != "" {
		startMetrics(gctx, g, cfg.Metrics.Addr, app)
	}

	g.Go(func() error {
		defer cancel()
		return server.Serve(gctx)
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func startMetrics(ctx context.Context, g *errgroup.Group, addr string, app *application) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.registry))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
