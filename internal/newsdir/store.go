// Package newsdir reads and writes the news tree: one directory per source,
// each holding JSON files with arrays of articles.
package newsdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/news-digest/internal/models"
)

// ErrInvalidSource is returned for source names that cannot be used as a directory name.
var ErrInvalidSource = errors.New("invalid source name")

const filePattern = "*.json"

// Store is a news tree rooted at a directory.
type Store struct {
	root string
	log  *slog.Logger
	now  func() time.Time
}

// New returns a store rooted at root.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{root: root, log: logger, now: time.Now}
}

// Load reads every source directory. A source without files maps to an empty
// slice. Any unreadable or malformed file fails the whole load.
func (s *Store) Load(ctx context.Context) (map[string][]models.Article, error) {
	sources, err := s.sources()
	if err != nil {
		return nil, err
	}

	news := make(map[string][]models.Article, len(sources))
	for _, source := range sources {
		files, err := s.files(source)
		if err != nil {
			return nil, err
		}

		articles := make([]models.Article, 0)
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			batch, err := readFile(path)
			if err != nil {
				return nil, err
			}
			articles = append(articles, batch...)
		}
		news[source] = articles
	}

	s.log.Debug("news tree loaded", slog.String("root", s.root), slog.Int("sources", len(news)))
	return news, nil
}

// Counts returns the number of articles per source.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	news, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(news))
	for source, articles := range news {
		counts[source] = len(articles)
	}
	return counts, nil
}

// Save writes articles as a new file of the source directory and returns its path.
func (s *Store) Save(_ context.Context, source string, articles []models.Article) (string, error) {
	if err := ValidateSource(source); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source dir: %w", err)
	}

	payload, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal articles: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.json", source, s.now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename news file: %w", err)
	}
	return path, nil
}

// PruneOlderThan removes news files last modified before now - maxAge.
func (s *Store) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	sources, err := s.sources()
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, source := range sources {
		files, err := s.files(source)
		if err != nil {
			return removed, err
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return removed, fmt.Errorf("stat %s: %w", path, err)
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove %s: %w", path, err)
			}
			removed++
			s.log.Debug("news file removed", slog.String("path", path))
		}
	}
	return removed, nil
}

func (s *Store) sources() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read news root: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

func (s *Store) files(source string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.root, source, filePattern))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", source, err)
	}
	out := files[:0]
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func readFile(path string) ([]models.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var articles []models.Article
	if err := json.NewDecoder(f).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return articles, nil
}

// ValidateSource rejects names that would escape the news root.
func ValidateSource(source string) error {
	switch {
	case strings.TrimSpace(source) == "", source == ".", source == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	case strings.ContainsAny(source, `/\`), strings.HasPrefix(source, "."):
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	return nil
}
