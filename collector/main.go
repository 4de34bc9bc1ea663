package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/collector"
	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/logger"
)

func main() {
	log := logger.New("collector")
	cfg, err := config.LoadCollector()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	sources, err := collector.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Error("load sources", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	c := collector.New(
		sources,
		collector.NewScraper(cfg.RequestTimeout),
		writer,
		dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		log,
	)

	log.Info("collector started",
		slog.Int("sources", len(sources)),
		slog.String("topic", cfg.KafkaTopic),
		slog.Duration("interval", cfg.Interval),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		stats, err := c.RunOnce(ctx)
		if err != nil {
			log.Warn("collection pass aborted", slog.Any("err", err))
		} else {
			log.Info("collection pass completed",
				slog.Int("published", stats.Published),
				slog.Int("skipped", stats.Skipped),
				slog.Int("errors", stats.Errors),
			)
		}

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
		}
	}
}
