package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/newsdir"
)

const (
	maxAttempts     = 5
	maxFetchBackoff = 5 * time.Second
)

var fetchBackoffStart = 100 * time.Millisecond

type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	sink, err := newSink(ctx, log, cfg)
	if err != nil {
		log.Error("init article store", slog.Any("err", err))
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.String("backend", cfg.NewsBackend),
	)

	b := newBatch(log, sink, dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL), cfg.BatchSize)
	if err := consume(ctx, log, reader, reader, dlqWriter, b, cfg.FlushInterval); err != nil {
		log.Error("worker stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func newSink(ctx context.Context, log *slog.Logger, cfg *config.Worker) (articleSink, error) {
	if cfg.NewsBackend != config.BackendElasticsearch {
		if err := os.MkdirAll(cfg.NewsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create news dir: %w", err)
		}
		return newsdir.New(cfg.NewsDir, log), nil
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := esClient.EnsureIndex(initCtx); err != nil {
		return nil, err
	}
	return esClient, nil
}

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

// consume fetches messages into b, flushing when the batch is full or the
// flush interval elapses. Offsets are committed only after a successful flush.
func consume(ctx context.Context, log *slog.Logger, reader fetcher, committer messageCommitter, dlq messageWriter, b *batch, interval time.Duration) error {
	deadline := time.Now().Add(interval)
	fetchBackoff := fetchBackoffStart

	for {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				log.Info("context canceled, flushing and stopping")
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return flushAndCommit(flushCtx, log, committer, b)
			case errors.Is(err, context.DeadlineExceeded):
				if err := flushAndCommit(ctx, log, committer, b); err != nil {
					return err
				}
				deadline = time.Now().Add(interval)
			case errors.Is(err, io.EOF):
				// the reader was closed
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if flushErr := flushAndCommit(flushCtx, log, committer, b); flushErr != nil {
					return flushErr
				}
				return fmt.Errorf("fetch message: %w", err)
			default:
				log.Error("fetch message", slog.Any("err", err), slog.Duration("backoff", fetchBackoff))
				select {
				case <-time.After(fetchBackoff):
				case <-ctx.Done():
				}
				fetchBackoff = min(fetchBackoff*2, maxFetchBackoff)
			}
			continue
		}
		fetchBackoff = fetchBackoffStart

		if err := b.add(msg); err != nil {
			log.Warn("invalid message, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if sendToDLQ(ctx, log, dlq, msg, err) {
				b.skip(msg)
			}
		}

		if b.full() {
			if err := flushAndCommit(ctx, log, committer, b); err != nil {
				return err
			}
			deadline = time.Now().Add(interval)
		}
	}
}

// flushAndCommit retries the flush with exponential backoff and gives up
// after maxAttempts; the uncommitted messages are then redelivered on restart.
func flushAndCommit(ctx context.Context, log *slog.Logger, committer messageCommitter, b *batch) error {
	if b.empty() {
		return nil
	}

	var lastErr error
	for attempt := range maxAttempts {
		done, err := b.flush(ctx)
		if err == nil {
			if err := committer.CommitMessages(ctx, done...); err != nil {
				log.Error("commit messages", slog.Any("err", err))
			}
			return nil
		}
		lastErr = err

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("flush failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("flush interrupted: %w", lastErr)
		}
	}
	return fmt.Errorf("flush exhausted retries: %w", lastErr)
}

// sendToDLQ forwards msg with error context, retrying with backoff.
func sendToDLQ(ctx context.Context, log *slog.Logger, writer messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range maxAttempts {
		dlqErr := writer.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}
