package processing_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestCleanDocument(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "short tokens dropped", input: "The cat sat on the mat", want: ""},
		{name: "lowercase", input: "Breaking NEWS from Moscow", want: "breaking news from moscow"},
		{name: "cyrillic kept", input: "Центробанк повысил ставку до 7,5%", want: "центробанк повысил ставку"},
		{name: "punctuation splits words", input: "covid-19, vaccine:approved", want: "covid vaccine approved"},
		{name: "hash kept", input: "#news ####", want: "#news ####"},
		{name: "yo is not a letter", input: "ёлочка Ёжики", want: "лочка жики"},
		{name: "length counts runes", input: "мир миру", want: "миру"},
		{name: "whitespace collapsed", input: "alpha\n\n\tbeta", want: "alpha beta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.CleanDocument(tt.input))
		})
	}
}

func TestCleanDocumentsProperties(t *testing.T) {
	docs := []string{"Hello World", "Россия и США", "a b c", "ALL CAPS HEADLINE"}
	for _, out := range processing.CleanDocuments(docs) {
		require.Equal(t, strings.ToLower(out), out)
		if out == "" {
			continue
		}
		for _, token := range strings.Split(out, " ") {
			require.Greater(t, utf8.RuneCountInString(token), processing.MinTokenLength)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	want := time.Date(2021, 3, 1, 10, 15, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "positive offset dropped", raw: "2021-03-01T10:15:00+03:00", want: want},
		{name: "naive", raw: "2021-03-01T10:15:00", want: want},
		{name: "space separator", raw: "2021-03-01 10:15:00", want: want},
		{name: "utc suffix", raw: "2021-03-01T10:15:00Z", want: want},
		{name: "negative offset keeps wall clock", raw: "2021-03-01T10:15:00-05:00", want: want},
		{name: "fractional seconds", raw: "2021-03-01T10:15:00.250+00:00", want: want.Add(250 * time.Millisecond)},
		{name: "minutes only", raw: "2021-03-01T10:15", want: want},
		{name: "date only", raw: "2021-03-01", want: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := processing.NormalizeTimestamp(tt.raw)
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got), "got %s", got)
			require.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := processing.NormalizeTimestamp("1 марта")
	require.ErrorIs(t, err, processing.ErrBadTimestamp)
}

func TestBuildDocumentID(t *testing.T) {
	id1 := processing.BuildDocumentID("rbc", "https://rbc.ru/1", "title", "2021-03-01")
	id2 := processing.BuildDocumentID("interfax", " https://rbc.ru/1 ", "other", "2021-03-02")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)

	noLink := processing.BuildDocumentID("rbc", "", "title", "2021-03-01")
	require.NotEqual(t, id1, noLink)
	require.Equal(t, noLink, processing.BuildDocumentID("rbc", "", "title", "2021-03-01"))
}

func article(title, text, ts, link string) models.Article {
	return models.Article{Title: title, Text: text, Timestamp: ts, FullLink: link}
}

func TestAssembleRows(t *testing.T) {
	news := map[string][]models.Article{
		"reuters": {
			article("Oil", "prices fall", "2021-03-01T10:00:00+00:00", "https://reuters.com/1"),
			article("Gold", "prices rise", "2021-03-02T10:00:00", "https://reuters.com/2"),
		},
		"bbc":   {article("Vote", "counted today", "2021-03-03", "https://bbc.co.uk/1")},
		"empty": {},
	}

	rows, err := processing.AssembleRows(news, true)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// sources are visited in name order
	require.Equal(t, "Vote counted today", rows[0].Document)
	require.Equal(t, 0, rows[0].Index)
	require.Equal(t, "Oil prices fall", rows[1].Document)
	require.Equal(t, 1, rows[1].Index)
	require.Equal(t, "https://reuters.com/2", rows[2].Link)
	require.Equal(t, "Gold", rows[2].Title)

	flat := append(append([]models.Article{}, news["bbc"]...), news["reuters"]...)
	for i, row := range rows {
		require.Len(t, row.Document, len(flat[i].Title)+1+len(flat[i].Text))
		require.NotEmpty(t, row.Link)
		require.False(t, row.Date.IsZero())
	}
}

func TestAssembleRowsIncompleteArticles(t *testing.T) {
	var partial models.Article
	require.NoError(t, partial.UnmarshalJSON([]byte(`{"title": "No link", "text": "body", "timestamp": "2021-03-01"}`)))

	news := map[string][]models.Article{
		"bbc": {partial, article("Kept", "body", "2021-03-01", "https://bbc.co.uk/2"), article("Bad", "date", "soon", "https://bbc.co.uk/3")},
	}

	_, err := processing.AssembleRows(news, true)
	require.ErrorIs(t, err, models.ErrMissingField)

	rows, err := processing.AssembleRows(news, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Index)
	require.Equal(t, "Kept", rows[0].Title)
}

func TestAssembleRowsStrictRejectsBadTimestamp(t *testing.T) {
	news := map[string][]models.Article{
		"bbc": {article("Bad", "date", "soon", "https://bbc.co.uk/3")},
	}
	_, err := processing.AssembleRows(news, true)
	require.ErrorIs(t, err, processing.ErrBadTimestamp)
}

func TestFilterByDate(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2021, 3, d, 0, 0, 0, 0, time.UTC) }
	rows := []models.DocumentRow{{Index: 0, Date: day(1)}, {Index: 1, Date: day(2)}, {Index: 2, Date: day(3)}, {Index: 3, Date: day(4)}}

	got := processing.FilterByDate(rows, day(2), day(3))
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Index)
	require.Equal(t, 2, got[1].Index)

	require.Empty(t, processing.FilterByDate(rows, day(5), day(1)))
	require.Equal(t, []string{"", ""}, processing.Documents(got))
}
