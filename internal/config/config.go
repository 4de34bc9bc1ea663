package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Article store backends.
const (
	BackendFS            = "fs"
	BackendElasticsearch = "elasticsearch"
)

// Common selects the article store shared by every service.
type Common struct {
	NewsBackend        string
	NewsDir            string
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Worker holds configuration for the Kafka -> article store worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	FlushInterval  time.Duration
}

// API describes HTTP-layer and digest pipeline configuration.
type API struct {
	Common
	BindAddr       string
	ModelDir       string
	Clusters       int
	TopKeywords    int
	NewsPerCluster int
	StrictArticles bool
	ClusterSeed    *uint64
	DigestTimeout  time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Collector configures the feed scraper.
type Collector struct {
	KafkaBrokers   []string
	KafkaTopic     string
	SourcesFile    string
	Interval       time.Duration
	RequestTimeout time.Duration
	DedupeCapacity int
	DedupeTTL      time.Duration
}

func loadCommon() (Common, error) {
	c := Common{
		NewsBackend:        strings.ToLower(getEnv("NEWS_BACKEND", BackendFS)),
		NewsDir:            getEnv("NEWS_DIR", "news"),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news"),
	}
	switch c.NewsBackend {
	case BackendFS, BackendElasticsearch:
	default:
		return c, fmt.Errorf("NEWS_BACKEND must be %q or %q", BackendFS, BackendElasticsearch)
	}
	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common:         common,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "news_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "news-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 100),
		FlushInterval:  getDuration("WORKER_FLUSH_INTERVAL", "10s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.FlushInterval <= 0 {
		return nil, fmt.Errorf("WORKER_FLUSH_INTERVAL must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &API{
		Common:         common,
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		ModelDir:       getEnv("MODEL_DIR", "."),
		Clusters:       getInt("DIGEST_CLUSTERS", 10),
		TopKeywords:    getInt("DIGEST_TOP_KEYWORDS", 10),
		NewsPerCluster: getInt("DIGEST_NEWS_PER_CLUSTER", 10),
		StrictArticles: getBool("NEWS_STRICT", false),
		DigestTimeout:  getDuration("DIGEST_TIMEOUT", "2m"),
	}

	if raw := getEnv("CLUSTER_SEED", ""); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CLUSTER_SEED must be an unsigned integer: %w", err)
		}
		c.ClusterSeed = &seed
	}

	if c.Clusters <= 0 {
		return nil, fmt.Errorf("DIGEST_CLUSTERS must be positive")
	}
	if c.TopKeywords <= 0 {
		return nil, fmt.Errorf("DIGEST_TOP_KEYWORDS must be positive")
	}
	if c.NewsPerCluster <= 0 {
		return nil, fmt.Errorf("DIGEST_NEWS_PER_CLUSTER must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Retention{
		Common:    common,
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadCollector builds a Collector config from environment variables.
func LoadCollector() (*Collector, error) {
	c := &Collector{
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "news_raw"),
		SourcesFile:    getEnv("COLLECTOR_SOURCES_FILE", "configs/sources.yaml"),
		Interval:       getDuration("COLLECTOR_INTERVAL", "15m"),
		RequestTimeout: getDuration("COLLECTOR_REQUEST_TIMEOUT", "3s"),
		DedupeCapacity: getInt("COLLECTOR_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("COLLECTOR_DEDUPE_TTL", "72h"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("COLLECTOR_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
