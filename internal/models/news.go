package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingField is returned by Article.Validate when a required key was absent or null.
var ErrMissingField = errors.New("missing required field")

// Article is a single news record as written by the scrapers into the news tree.
type Article struct {
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"`
	FullLink  string   `json:"full_link"`
	Tags      []string `json:"tags,omitempty"`

	missing []string
}

// UnmarshalJSON decodes an article and remembers which required keys were absent or null.
func (a *Article) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title     *string  `json:"title"`
		Text      *string  `json:"text"`
		Timestamp *string  `json:"timestamp"`
		FullLink  *string  `json:"full_link"`
		Tags      []string `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Article{Tags: raw.Tags}
	a.Title = take(raw.Title, "title", &a.missing)
	a.Text = take(raw.Text, "text", &a.missing)
	a.Timestamp = take(raw.Timestamp, "timestamp", &a.missing)
	a.FullLink = take(raw.FullLink, "full_link", &a.missing)
	return nil
}

func take(v *string, key string, missing *[]string) string {
	if v == nil {
		*missing = append(*missing, key)
		return ""
	}
	return *v
}

// Complete reports whether every required key was present when the article was decoded.
func (a Article) Complete() bool {
	return len(a.missing) == 0
}

// Validate returns ErrMissingField naming the absent keys.
func (a Article) Validate() error {
	if len(a.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(a.missing, ", "))
}

// IncomingArticle is the Kafka payload produced by the collector and consumed by the worker.
type IncomingArticle struct {
	Source    string   `json:"source"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"`
	FullLink  string   `json:"full_link"`
	Tags      []string `json:"tags,omitempty"`
}

// Article drops the routing field.
func (in IncomingArticle) Article() Article {
	return Article{
		Title:     in.Title,
		Text:      in.Text,
		Timestamp: in.Timestamp,
		FullLink:  in.FullLink,
		Tags:      in.Tags,
	}
}

// DocumentRow is one row of the flattened news table fed into the clustering pipeline.
type DocumentRow struct {
	Index    int
	Document string
	Date     time.Time
	Link     string
	Title    string
}
