package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"github.com/DeafMist/news-digest/internal/models"
)

// FeedItem is an article link announced by a feed.
type FeedItem struct {
	Link      string
	Title     string
	Published string
}

// Scraper fetches feeds and article pages.
type Scraper struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewScraper returns a scraper whose requests time out after timeout.
func NewScraper(timeout time.Duration) *Scraper {
	client := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = client
	return &Scraper{client: client, parser: parser}
}

// Items lists the article links of the source feed.
func (s *Scraper) Items(ctx context.Context, src Source) ([]FeedItem, error) {
	feed, err := s.parser.ParseURLWithContext(src.Feed, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Feed, err)
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		fi := FeedItem{Link: link, Title: strings.TrimSpace(item.Title), Published: item.Published}
		if item.PublishedParsed != nil {
			fi.Published = item.PublishedParsed.Format(time.RFC3339)
		}
		items = append(items, fi)
	}
	return items, nil
}

// Article downloads and parses the page of item.
func (s *Scraper) Article(ctx context.Context, src Source, item FeedItem) (models.IncomingArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Link, nil)
	if err != nil {
		return models.IncomingArticle{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return models.IncomingArticle{}, fmt.Errorf("fetch %s: %w", item.Link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.IncomingArticle{}, fmt.Errorf("fetch %s: HTTP %d", item.Link, resp.StatusCode)
	}

	// interfax and friends still serve windows-1251
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return models.IncomingArticle{}, fmt.Errorf("decode charset: %w", err)
	}
	return ParsePage(src, item, body)
}

// ParsePage extracts an article from HTML using the source selectors.
// Missing page fields fall back to the feed item.
func ParsePage(src Source, item FeedItem, r io.Reader) (models.IncomingArticle, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.IncomingArticle{}, fmt.Errorf("parse html: %w", err)
	}

	article := models.IncomingArticle{
		Source:   src.Name,
		FullLink: item.Link,
		Title:    strings.TrimSpace(doc.Find(src.TitleSelector).First().Text()),
	}
	if article.Title == "" {
		article.Title = item.Title
	}

	var paragraphs []string
	doc.Find(src.TextSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	article.Text = strings.Join(paragraphs, "\n")

	if ts, ok := doc.Find(src.TimeSelector).First().Attr(src.TimeAttr); ok && strings.TrimSpace(ts) != "" {
		article.Timestamp = strings.TrimSpace(ts)
	} else {
		article.Timestamp = item.Published
	}

	if src.TagsSelector != "" {
		doc.Find(src.TagsSelector).Each(func(_ int, s *goquery.Selection) {
			if tag := strings.TrimSpace(s.Text()); tag != "" {
				article.Tags = append(article.Tags, tag)
			}
		})
	}

	switch {
	case article.Title == "" && article.Text == "":
		return article, errors.New("page has no title or text")
	case article.Timestamp == "":
		return article, errors.New("page has no timestamp")
	}
	return article, nil
}
