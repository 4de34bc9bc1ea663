package collector_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/collector"
	"github.com/DeafMist/news-digest/internal/dedupe"
	"github.com/DeafMist/news-digest/internal/models"
)

const articlePage = `<html><head><meta charset="utf-8"></head><body>
<h1> Курс рубля вырос </h1>
<span class="article__header__date" datetime="2021-03-01T10:00:00+03:00">1 марта</span>
<div class="article__text"><p>Первый абзац.</p><p>  </p><p>Второй абзац.</p></div>
<div class="article__tags__container"><a>Экономика</a><a>Рубль</a></div>
</body></html>`

func rbcSource() collector.Source {
	return collector.Source{
		Name:          "rbc",
		Feed:          "https://example.test/rss",
		TitleSelector: "h1",
		TextSelector:  ".article__text p",
		TimeSelector:  ".article__header__date",
		TimeAttr:      "datetime",
		TagsSelector:  ".article__tags__container a",
	}
}

func TestParsePage(t *testing.T) {
	item := collector.FeedItem{Link: "https://rbc.ru/1", Title: "feed title", Published: "2021-03-01T07:00:00Z"}
	article, err := collector.ParsePage(rbcSource(), item, strings.NewReader(articlePage))
	require.NoError(t, err)

	require.Equal(t, "rbc", article.Source)
	require.Equal(t, "Курс рубля вырос", article.Title)
	require.Equal(t, "Первый абзац.\nВторой абзац.", article.Text)
	require.Equal(t, "2021-03-01T10:00:00+03:00", article.Timestamp)
	require.Equal(t, "https://rbc.ru/1", article.FullLink)
	require.Equal(t, []string{"Экономика", "Рубль"}, article.Tags)
}

func TestParsePageFallsBackToFeedItem(t *testing.T) {
	item := collector.FeedItem{Link: "https://rbc.ru/2", Title: "feed title", Published: "2021-03-01T07:00:00Z"}
	article, err := collector.ParsePage(rbcSource(), item, strings.NewReader(`<html><body><div class="article__text"><p>text</p></div></body></html>`))
	require.NoError(t, err)
	require.Equal(t, "feed title", article.Title)
	require.Equal(t, "2021-03-01T07:00:00Z", article.Timestamp)

	_, err = collector.ParsePage(rbcSource(), collector.FeedItem{Link: "https://rbc.ru/3"}, strings.NewReader(`<html></html>`))
	require.Error(t, err)
}

func TestScraperAgainstHTTPServer(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>One</title><link>%[1]s/news/1</link><pubDate>Mon, 01 Mar 2021 07:00:00 +0000</pubDate></item>
<item><title>No link</title></item>
</channel></rss>`, srv.URL)
		case "/news/1":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, articlePage)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := rbcSource()
	src.Feed = srv.URL + "/rss"
	scraper := collector.NewScraper(time.Second)

	items, err := scraper.Items(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, srv.URL+"/news/1", items[0].Link)
	require.Equal(t, "2021-03-01T07:00:00Z", items[0].Published)

	article, err := scraper.Article(context.Background(), src, items[0])
	require.NoError(t, err)
	require.Equal(t, "Курс рубля вырос", article.Title)

	_, err = scraper.Article(context.Background(), src, collector.FeedItem{Link: srv.URL + "/missing"})
	require.Error(t, err)
}

type stubFetcher struct {
	items    map[string][]collector.FeedItem
	failFeed map[string]bool
	failLink map[string]bool
}

func (f *stubFetcher) Items(_ context.Context, src collector.Source) ([]collector.FeedItem, error) {
	if f.failFeed[src.Name] {
		return nil, errors.New("feed down")
	}
	return f.items[src.Name], nil
}

func (f *stubFetcher) Article(_ context.Context, src collector.Source, item collector.FeedItem) (models.IncomingArticle, error) {
	if f.failLink[item.Link] {
		return models.IncomingArticle{}, errors.New("timeout")
	}
	return models.IncomingArticle{
		Source:    src.Name,
		Title:     item.Title,
		Text:      "text of " + item.Title,
		Timestamp: "2021-03-01T10:00:00",
		FullLink:  item.Link,
	}, nil
}

type recordingPublisher struct {
	msgs []kafka.Message
}

func (p *recordingPublisher) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestRunOncePublishesNewArticles(t *testing.T) {
	fetcher := &stubFetcher{
		items: map[string][]collector.FeedItem{
			"rbc": {
				{Link: "https://rbc.ru/1", Title: "one"},
				{Link: "https://rbc.ru/2", Title: "two"},
			},
		},
		failFeed: map[string]bool{"interfax": true},
		failLink: map[string]bool{"https://rbc.ru/2": true},
	}
	pub := &recordingPublisher{}
	sources := []collector.Source{{Name: "rbc"}, {Name: "interfax"}}
	c := collector.New(sources, fetcher, pub, dedupe.NewCache(10, time.Hour), nil)

	stats, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, collector.Stats{Published: 1, Errors: 2}, stats)
	require.Len(t, pub.msgs, 1)
	require.Equal(t, "rbc", string(pub.msgs[0].Key))

	var got models.IncomingArticle
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &got))
	require.Equal(t, "https://rbc.ru/1", got.FullLink)

	stats, err = c.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Len(t, pub.msgs, 1)
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sources:
  - name: rbc
    feed: https://rbc.example/rss
    text_selector: .article__text p
  - name: interfax
    feed: https://interfax.example/rss
`), 0o644))

	sources, err := collector.LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, ".article__text p", sources[0].TextSelector)
	require.Equal(t, "h1", sources[0].TitleSelector)
	require.Equal(t, "article p", sources[1].TextSelector)
	require.Equal(t, "datetime", sources[1].TimeAttr)
}

func TestLoadSourcesRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"empty":      "sources: []\n",
		"bad name":   "sources:\n  - name: ../x\n    feed: https://a\n",
		"no feed":    "sources:\n  - name: rbc\n",
		"duplicates": "sources:\n  - name: rbc\n    feed: https://a\n  - name: rbc\n    feed: https://b\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sources.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := collector.LoadSources(path)
			require.Error(t, err)
		})
	}
}
