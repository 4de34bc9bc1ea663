package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/processing"
)

// Fetcher lists and scrapes articles. Scraper is the production implementation.
type Fetcher interface {
	Items(ctx context.Context, src Source) ([]FeedItem, error)
	Article(ctx context.Context, src Source, item FeedItem) (models.IncomingArticle, error)
}

// Publisher writes Kafka messages.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Stats summarises one collection pass.
type Stats struct {
	Published int
	Skipped   int
	Errors    int
}

// Collector runs collection passes over the configured sources.
type Collector struct {
	sources   []Source
	fetcher   Fetcher
	publisher Publisher
	seen      *dedupe.Cache
	log       *slog.Logger
}

// New builds a collector.
func New(sources []Source, fetcher Fetcher, publisher Publisher, seen *dedupe.Cache, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{sources: sources, fetcher: fetcher, publisher: publisher, seen: seen, log: logger}
}

// RunOnce fetches every source once. A failing feed or page is logged and
// counted; the pass continues with the next item. Only a publish failure aborts.
func (c *Collector) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, src := range c.sources {
		items, err := c.fetcher.Items(ctx, src)
		if err != nil {
			stats.Errors++
			c.log.Warn("feed failed", slog.String("source", src.Name), slog.Any("err", err))
			continue
		}
		c.log.Info("feed loaded", slog.String("source", src.Name), slog.Int("items", len(items)))

		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			id := processing.BuildDocumentID(src.Name, item.Link, item.Title, item.Published)
			if c.seen.Seen(id) {
				stats.Skipped++
				continue
			}

			article, err := c.fetcher.Article(ctx, src, item)
			if err != nil {
				stats.Errors++
				c.log.Warn("article failed",
					slog.String("source", src.Name),
					slog.String("link", item.Link),
					slog.Any("err", err),
				)
				continue
			}

			if err := c.publish(ctx, article); err != nil {
				return stats, err
			}
			c.seen.Mark(id)
			stats.Published++
			c.log.Debug("article published",
				slog.String("source", src.Name),
				slog.Int("position", i+1),
				slog.Int("of", len(items)),
			)
		}
	}
	return stats, nil
}

func (c *Collector) publish(ctx context.Context, article models.IncomingArticle) error {
	payload, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	msg := kafka.Message{Key: []byte(article.Source), Value: payload}
	if err := c.publisher.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish article: %w", err)
	}
	return nil
}
