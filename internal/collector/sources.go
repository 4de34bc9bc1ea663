// Package collector lists articles from news feeds, scrapes their pages and
// publishes them to Kafka for the worker.
package collector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/news-digest/internal/newsdir"
)

// Source describes one news site: the feed listing article links and the
// selectors used to pull fields out of an article page.
type Source struct {
	Name          string `yaml:"name"`
	Feed          string `yaml:"feed"`
	TitleSelector string `yaml:"title_selector"`
	TextSelector  string `yaml:"text_selector"`
	TimeSelector  string `yaml:"time_selector"`
	TimeAttr      string `yaml:"time_attr"`
	TagsSelector  string `yaml:"tags_selector"`
}

// SourcesConfig is the YAML layout:
//
//	sources:
//	  - name: rbc
//	    feed: https://...
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads and validates the source list, filling selector defaults.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources: %w", err)
	}
	defer f.Close()

	var cfg SourcesConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources in %s", path)
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if err := newsdir.ValidateSource(src.Name); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("source %s listed twice", src.Name)
		}
		seen[src.Name] = struct{}{}
		if src.Feed == "" {
			return nil, fmt.Errorf("source %s: feed is required", src.Name)
		}
		if src.TitleSelector == "" {
			src.TitleSelector = "h1"
		}
		if src.TextSelector == "" {
			src.TextSelector = "article p"
		}
		if src.TimeSelector == "" {
			src.TimeSelector = "time[datetime]"
		}
		if src.TimeAttr == "" {
			src.TimeAttr = "datetime"
		}
	}
	return cfg.Sources, nil
}
