package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/newsdir"
	"github.com/DeafMist/news-digest/internal/processing"
)

type articleSink interface {
	Save(ctx context.Context, source string, articles []models.Article) (string, error)
}

// batch accumulates decoded articles per source until they are flushed to the sink.
type batch struct {
	log   *slog.Logger
	sink  articleSink
	cache *dedupe.Cache
	limit int

	bySource map[string][]models.Article
	ids      map[string]struct{}
	messages []kafka.Message
	count    int
}

func newBatch(log *slog.Logger, sink articleSink, cache *dedupe.Cache, limit int) *batch {
	b := &batch{log: log, sink: sink, cache: cache, limit: limit}
	b.reset()
	return b
}

func (b *batch) reset() {
	b.bySource = make(map[string][]models.Article)
	b.ids = make(map[string]struct{})
	b.messages = nil
	b.count = 0
}

// add decodes msg and queues its article. Duplicates are acknowledged without
// being queued. An error means the message is unusable and belongs in the DLQ.
func (b *batch) add(msg kafka.Message) error {
	in, id, err := decodeArticle(msg.Value)
	if err != nil {
		return err
	}
	b.messages = append(b.messages, msg)

	if _, pending := b.ids[id]; pending || b.cache.Seen(id) {
		b.log.Debug("duplicate article", slog.String("id", id), slog.String("link", in.FullLink))
		return nil
	}
	b.ids[id] = struct{}{}
	b.bySource[in.Source] = append(b.bySource[in.Source], in.Article())
	b.count++
	return nil
}

// skip acknowledges a message with the batch without storing anything, so its
// offset is committed together with the articles queued before it.
func (b *batch) skip(msg kafka.Message) {
	b.messages = append(b.messages, msg)
}

func (b *batch) full() bool {
	return b.count >= b.limit
}

func (b *batch) empty() bool {
	return len(b.messages) == 0
}

// flush writes queued articles and returns the messages that can be committed.
// On error nothing is reset so the flush can be retried.
func (b *batch) flush(ctx context.Context) ([]kafka.Message, error) {
	for _, source := range processing.SortedSources(b.bySource) {
		articles := b.bySource[source]
		location, err := b.sink.Save(ctx, source, articles)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", source, err)
		}
		delete(b.bySource, source)
		b.log.Info("articles stored",
			slog.String("source", source),
			slog.Int("count", len(articles)),
			slog.String("location", location),
		)
	}

	for id := range b.ids {
		b.cache.Mark(id)
	}
	done := b.messages
	b.reset()
	return done, nil
}

func decodeArticle(value []byte) (models.IncomingArticle, string, error) {
	var in models.IncomingArticle
	if err := json.Unmarshal(value, &in); err != nil {
		return in, "", fmt.Errorf("decode payload: %w", err)
	}

	in.Source = strings.TrimSpace(in.Source)
	in.Title = strings.TrimSpace(in.Title)
	in.Text = strings.TrimSpace(in.Text)
	in.FullLink = strings.TrimSpace(in.FullLink)
	in.Timestamp = strings.TrimSpace(in.Timestamp)

	if err := newsdir.ValidateSource(in.Source); err != nil {
		return in, "", err
	}
	if in.Title == "" && in.Text == "" {
		return in, "", errors.New("empty payload")
	}
	if in.FullLink == "" {
		return in, "", errors.New("missing full_link")
	}
	if _, err := processing.NormalizeTimestamp(in.Timestamp); err != nil {
		return in, "", err
	}

	return in, processing.BuildDocumentID(in.Source, in.FullLink, in.Title, in.Timestamp), nil
}
