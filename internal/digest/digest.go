// Package digest runs the topic clustering pipeline over the news store.
package digest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/news-digest/internal/artifacts"
	"github.com/DeafMist/news-digest/internal/cluster"
	"github.com/DeafMist/news-digest/internal/keywords"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/processing"
	"github.com/james-bowman/sparse"
)

// NewsSource is the article store the digest reads from.
type NewsSource interface {
	Load(ctx context.Context) (map[string][]models.Article, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Options tune the pipeline.
type Options struct {
	Clusters       int
	TopKeywords    int
	NewsPerCluster int
	Strict         bool
	// Seed fixes clustering initialisation. Nil draws a fresh seed per request.
	Seed *uint64
}

// DefaultOptions mirror the fixed values the digest was designed around.
func DefaultOptions() Options {
	return Options{
		Clusters:       cluster.DefaultK,
		TopKeywords:    keywords.DefaultTopN,
		NewsPerCluster: 10,
		Strict:         false,
	}
}

// Service builds digests and source statistics.
type Service struct {
	news   NewsSource
	models *artifacts.Provider
	opts   Options
	log    *slog.Logger
}

// New wires a digest service.
func New(news NewsSource, models *artifacts.Provider, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{news: news, models: models, opts: opts, log: logger}
}

// Stats returns the number of articles per source.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	counts, err := s.news.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count news: %w", err)
	}
	return counts, nil
}

// Digest clusters the articles dated within [start, end] and returns exactly
// one entry per cluster, in label order.
func (s *Service) Digest(ctx context.Context, start, end time.Time) ([]models.DigestEntry, error) {
	began := time.Now()
	log := s.log.With(slog.String("run_id", uuid.NewString()))

	set, err := s.models.Get()
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	news, err := s.news.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load news: %w", err)
	}
	rows, err := processing.AssembleRows(news, s.opts.Strict)
	if err != nil {
		return nil, fmt.Errorf("assemble news: %w", err)
	}
	rows = processing.FilterByDate(rows, start, end)
	if len(rows) == 0 {
		log.Info("digest built", slog.Int("rows", 0))
		return Compose(nil, nil, nil, nil, s.opts), nil
	}

	weights := set.Vectorizer.Transform(processing.CleanDocuments(processing.Documents(rows)))
	embedding, err := set.Embed(weights)
	if err != nil {
		return nil, fmt.Errorf("embed news: %w", err)
	}

	seed := s.seed()
	labels, err := cluster.New(s.opts.Clusters, seed).Fit(ctx, embedding)
	if err != nil {
		return nil, fmt.Errorf("cluster news: %w", err)
	}

	entries := Compose(rows, labels, weights, set.Vectorizer.FeatureNames(), s.opts)

	_, dims := embedding.Dims()
	log.Info("digest built",
		slog.Int("rows", len(rows)),
		slog.Int("dims", dims),
		slog.Uint64("seed", seed),
		slog.Duration("took", time.Since(began)),
	)
	return entries, nil
}

func (s *Service) seed() uint64 {
	if s.opts.Seed != nil {
		return *s.opts.Seed
	}
	return uint64(time.Now().UnixNano())
}

// Compose groups rows by label. Each entry holds the keywords of the cluster's
// rows in weights and its first NewsPerCluster rows in table order, keyed by row index.
// Clusters without members yield empty keywords and news.
func Compose(rows []models.DocumentRow, labels []int, weights *sparse.CSR, terms []string, opts Options) []models.DigestEntry {
	entries := make([]models.DigestEntry, opts.Clusters)
	for c := range entries {
		mask := make([]bool, len(rows))
		news := make(map[int]models.DigestNews)
		members := 0
		for i, label := range labels {
			if label != c {
				continue
			}
			mask[i] = true
			members++
			if len(news) < opts.NewsPerCluster {
				news[rows[i].Index] = models.NewDigestNews(rows[i])
			}
		}

		words := []string{}
		if weights != nil && members > 0 {
			words = keywords.Top(terms, selectRows(weights, mask), opts.TopKeywords)
		}
		entries[c] = models.DigestEntry{KeyWords: words, News: news}
	}
	return entries
}

// selectRows copies the rows of m flagged in keep into a new matrix.
func selectRows(m *sparse.CSR, keep []bool) *sparse.CSR {
	raw := m.RawMatrix()
	indptr := []int{0}
	var (
		ind  []int
		data []float64
		rows int
	)
	for i, ok := range keep {
		if !ok {
			continue
		}
		lo, hi := raw.Indptr[i], raw.Indptr[i+1]
		ind = append(ind, raw.Ind[lo:hi]...)
		data = append(data, raw.Data[lo:hi]...)
		indptr = append(indptr, len(ind))
		rows++
	}
	return sparse.NewCSR(rows, raw.J, indptr, ind, data)
}
