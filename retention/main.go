package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/newsdir"
)

// pruneFunc deletes articles older than maxAge and reports how many were removed.
type pruneFunc func(ctx context.Context, maxAge time.Duration) (int64, error)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var prune pruneFunc
	switch cfg.NewsBackend {
	case config.BackendElasticsearch:
		esClient := connectElasticsearch(ctx, log, cfg)
		prune = func(ctx context.Context, maxAge time.Duration) (int64, error) {
			return esClient.DeleteOlderThan(ctx, maxAge, cfg.BatchSize)
		}
	default:
		prune = newsdir.New(cfg.NewsDir, log).PruneOlderThan
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.String("backend", cfg.NewsBackend),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// Run immediately on start, but don't fail if the store is temporarily unavailable
	runOnce(ctx, log, prune, cfg.MaxAge)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, prune, cfg.MaxAge)
		}
	}
}

// connectElasticsearch retries the connection with exponential backoff and exits when it never comes up.
func connectElasticsearch(ctx context.Context, log *slog.Logger, cfg *config.Retention) *elasticsearch.Client {
	var (
		esClient *elasticsearch.Client
		err      error
	)
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		esClient, err = elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Warn("failed to create elasticsearch client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pingErr := esClient.Ping(pingCtx)
			cancel()
			if pingErr == nil {
				log.Info("connected to elasticsearch")
				return esClient
			}
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", pingErr),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_in", retryDelay),
			)
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			os.Exit(0)
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}

	log.Error("failed to connect to elasticsearch after retries")
	os.Exit(1)
	return nil
}

func runOnce(ctx context.Context, log *slog.Logger, prune pruneFunc, maxAge time.Duration) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := prune(subCtx, maxAge)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return deleted
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, nothing to delete")
	}
	return deleted
}
