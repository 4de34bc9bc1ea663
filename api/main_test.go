package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/models"
)

type stubDigester struct {
	stats   map[string]int
	entries []models.DigestEntry
	err     error

	start, end time.Time
	calls      int
}

func (s *stubDigester) Stats(context.Context) (map[string]int, error) {
	return s.stats, s.err
}

func (s *stubDigester) Digest(_ context.Context, start, end time.Time) ([]models.DigestEntry, error) {
	s.calls++
	s.start, s.end = start, end
	return s.entries, s.err
}

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

func newTestServer(d digester, h healthChecker) http.Handler {
	srv := &server{
		log:    logger.Nop(),
		cfg:    &config.API{DigestTimeout: time.Minute},
		digest: d,
		health: h,
	}
	return srv.routes()
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&stubDigester{}, nil), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, newTestServer(&stubDigester{}, stubHealth{err: errors.New("red")}), "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	rec := do(t, newTestServer(&stubDigester{stats: map[string]int{"rbc": 3, "interfax": 0}}, nil), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"rbc":3,"interfax":0}`, rec.Body.String())

	rec = do(t, newTestServer(&stubDigester{err: errors.New("disk")}, nil), "/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDigest(t *testing.T) {
	stub := &stubDigester{entries: []models.DigestEntry{
		{KeyWords: []string{"нефть"}, News: map[int]models.DigestNews{4: {Dates: "2023-05-01T10:00:00", Titles: "t", Links: "l"}}},
		{KeyWords: []string{}, News: map[int]models.DigestNews{}},
	}}
	rec := do(t, newTestServer(stub, nil), "/digest?start_time=2023-05-01T00:00:00&end_time=2023-05-02")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[
		{"key_words":["нефть"],"news":{"4":{"dates":"2023-05-01T10:00:00","titles":"t","links":"l"}}},
		{"key_words":[],"news":{}}
	]`, rec.Body.String())

	require.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), stub.start)
	require.Equal(t, time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC), stub.end)

	var decoded []models.DigestEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded, 2)
}

func TestDigestBadRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "missing start", target: "/digest?end_time=2023-05-02T00:00:00"},
		{name: "missing end", target: "/digest?start_time=2023-05-01T00:00:00"},
		{name: "garbage start", target: "/digest?start_time=yesterday&end_time=2023-05-02T00:00:00"},
		{name: "garbage end", target: "/digest?start_time=2023-05-01T00:00:00&end_time=13/13/2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDigester{}
			rec := do(t, newTestServer(stub, nil), tt.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
			require.Zero(t, stub.calls)
		})
	}
}

func TestDigestFailure(t *testing.T) {
	stub := &stubDigester{err: errors.New("load models: open artifact: no such file")}
	rec := do(t, newTestServer(stub, nil), "/digest?start_time=2023-05-01T00:00:00&end_time=2023-05-02T00:00:00")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "open artifact")
}

func TestParseQueryTime(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{name: "naive", raw: "2023-05-01T10:00:00", want: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "date only", raw: "2023-05-01", want: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "utc zone", raw: "2023-05-01T10:00:00Z", want: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "offset", raw: "2023-05-01T10:00:00+03:00", want: time.Date(2023, 5, 1, 7, 0, 0, 0, time.UTC)},
		{name: "plus decoded as space", raw: "2023-05-01T10:00:00 03:00", want: time.Date(2023, 5, 1, 7, 0, 0, 0, time.UTC)},
		{name: "negative offset", raw: "2023-05-01T10:00:00-02:00", want: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)},
		{name: "space separator with offset", raw: "2023-05-01 10:00:00+03:00", want: time.Date(2023, 5, 1, 7, 0, 0, 0, time.UTC)},
		{name: "no seconds with offset", raw: "2023-05-01T10:00+03:00", want: time.Date(2023, 5, 1, 7, 0, 0, 0, time.UTC)},
		{name: "space separator with decoded plus", raw: "2023-05-01 10:00:00 03:00", want: time.Date(2023, 5, 1, 7, 0, 0, 0, time.UTC)},
		{name: "compact offset", raw: "2023-05-01T10:00:00+0330", want: time.Date(2023, 5, 1, 6, 30, 0, 0, time.UTC)},
		{name: "fraction with zone", raw: "2023-05-01T10:00:00.5Z", want: time.Date(2023, 5, 1, 10, 0, 0, 5e8, time.UTC)},
		{name: "naive without seconds", raw: "2023-05-01 10:00", want: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "empty", raw: " ", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueryTime(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
