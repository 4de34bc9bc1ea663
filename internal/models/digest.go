package models

import "time"

// NaiveLayout renders zone-less instants.
const NaiveLayout = "2006-01-02T15:04:05"

// DigestNews is a representative article of a cluster.
type DigestNews struct {
	Dates  string `json:"dates"`
	Titles string `json:"titles"`
	Links  string `json:"links"`
}

// DigestEntry describes one topic cluster.
type DigestEntry struct {
	KeyWords []string           `json:"key_words"`
	News     map[int]DigestNews `json:"news"`
}

// NewDigestNews builds the representative view of a row.
func NewDigestNews(row DocumentRow) DigestNews {
	return DigestNews{
		Dates:  row.Date.Format(NaiveLayout),
		Titles: row.Title,
		Links:  row.Link,
	}
}

// ArticleDocument is the shape stored in Elasticsearch.
type ArticleDocument struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Timestamp   string    `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
	FullLink    string    `json:"full_link"`
	Tags        []string  `json:"tags,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}
