package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-digest/internal/artifacts"
	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/digest"
	"github.com/DeafMist/news-digest/internal/elasticsearch"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/newsdir"
	"github.com/DeafMist/news-digest/internal/processing"
)

type digester interface {
	Stats(ctx context.Context) (map[string]int, error)
	Digest(ctx context.Context, start, end time.Time) ([]models.DigestEntry, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv := &server{log: log, cfg: cfg}
	var source digest.NewsSource
	switch cfg.NewsBackend {
	case config.BackendElasticsearch:
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = esClient.EnsureIndex(initCtx)
		cancel()
		if err != nil {
			log.Error("ensure index", slog.Any("err", err))
			os.Exit(1)
		}
		source, srv.health = esClient, esClient
	default:
		source = newsdir.New(cfg.NewsDir, log)
	}

	opts := digest.Options{
		Clusters:       cfg.Clusters,
		TopKeywords:    cfg.TopKeywords,
		NewsPerCluster: cfg.NewsPerCluster,
		Strict:         cfg.StrictArticles,
		Seed:           cfg.ClusterSeed,
	}
	srv.digest = digest.New(source, artifacts.NewProvider(cfg.ModelDir), opts, log)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.DigestTimeout + 15*time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("backend", cfg.NewsBackend),
			slog.String("model_dir", cfg.ModelDir),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	digest digester
	health healthChecker
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/digest", s.handleDigest)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.health.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.digest.Stats(r.Context())
	if err != nil {
		s.log.Error("stats failed", slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleDigest(w http.ResponseWriter, r *http.Request) {
	start, err := parseQueryTime(r.URL.Query().Get("start_time"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_time: " + err.Error()})
		return
	}
	end, err := parseQueryTime(r.URL.Query().Get("end_time"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_time: " + err.Error()})
		return
	}

	ctx := r.Context()
	if s.cfg != nil && s.cfg.DigestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DigestTimeout)
		defer cancel()
	}

	entries, err := s.digest.Digest(ctx, start, end)
	if err != nil {
		s.log.Error("digest failed", slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// zoneSuffix matches a trailing "Z" or "±hh:mm" / "±hhmm" offset. A space
// stands for a '+' that query decoding turned into a blank.
var zoneSuffix = regexp.MustCompile(`^(.*\d)(Z|z|[+\- ]\d{2}:?\d{2})$`)

// parseQueryTime accepts ISO date-times with or without a zone. Zoned values
// are converted to UTC; zone-less values are taken as they are.
func parseQueryTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("required")
	}

	value, offset, zoned := splitZone(raw)
	ts, err := processing.NormalizeTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q", raw)
	}
	if zoned {
		ts = ts.Add(-offset)
	}
	return ts, nil
}

// splitZone cuts a zone suffix off raw. An offset only counts when it follows
// a clock time, so "2023-05-01 10:00" stays a naive value.
func splitZone(raw string) (string, time.Duration, bool) {
	m := zoneSuffix.FindStringSubmatch(raw)
	if m == nil || !strings.Contains(m[1], ":") {
		return raw, 0, false
	}
	zone := m[2]
	if zone == "Z" || zone == "z" {
		return m[1], 0, true
	}

	digits := strings.ReplaceAll(zone[1:], ":", "")
	hours, _ := strconv.Atoi(digits[:2])
	minutes, _ := strconv.Atoi(digits[2:])
	offset := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if zone[0] == '-' {
		offset = -offset
	}
	return m[1], offset, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
