package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mirror backends.
const (
	MirrorMemory        = "memory"
	MirrorElasticsearch = "elasticsearch"
)

// Elasticsearch parameters shared by every binary that touches the mirror.
type Elasticsearch struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Common contains the pipeline configuration shared by every runner.
type Common struct {
	Elasticsearch
	EmailsDir         string
	ColleaguesFile    string
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string
	EmbeddingsEnabled bool
	EmbeddingModel    string
	EmbeddingDims     int
	MirrorBackend     string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr      string
	ReportTimeout time.Duration
}

// Batch configures the one-shot command line run.
type Batch struct {
	Common
}

// Worker holds configuration for the Kafka-triggered runner.
type Worker struct {
	Common
	KafkaBrokers   []string
	RequestTopic   string
	ResultTopic    string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	RunTimeout     time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Elasticsearch
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadElasticsearch() Elasticsearch {
	return Elasticsearch{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "emails"),
	}
}

func loadCommon() Common {
	return Common{
		Elasticsearch:     loadElasticsearch(),
		EmailsDir:         getEnv("EMAILS_DIR", "emails"),
		ColleaguesFile:    getEnv("COLLEAGUES_FILE", "Colleagues.txt"),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingsEnabled: getBool("EMBEDDINGS_ENABLED", false),
		EmbeddingModel:    getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		EmbeddingDims:     getInt("EMBEDDING_DIMS", 1536),
		MirrorBackend:     strings.ToLower(getEnv("MIRROR_BACKEND", MirrorMemory)),
	}
}

// Validate checks the pipeline settings. Binaries call it after applying
// their own overrides.
func (c *Common) Validate() error {
	if strings.TrimSpace(c.EmailsDir) == "" {
		return fmt.Errorf("EMAILS_DIR must not be empty")
	}
	if c.ColleaguesFile == "" || strings.ContainsAny(c.ColleaguesFile, `/\`) {
		return fmt.Errorf("COLLEAGUES_FILE must be a bare file name, got %q", c.ColleaguesFile)
	}
	if strings.TrimSpace(c.OpenAIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if c.OpenAIModel == "" {
		return fmt.Errorf("OPENAI_MODEL must not be empty")
	}
	if c.EmbeddingsEnabled && c.EmbeddingModel == "" {
		return fmt.Errorf("OPENAI_EMBEDDING_MODEL must be set when EMBEDDINGS_ENABLED is true")
	}
	if c.EmbeddingDims <= 0 {
		return fmt.Errorf("EMBEDDING_DIMS must be positive")
	}
	switch c.MirrorBackend {
	case MirrorMemory, MirrorElasticsearch:
	default:
		return fmt.Errorf("MIRROR_BACKEND must be %q or %q, got %q", MirrorMemory, MirrorElasticsearch, c.MirrorBackend)
	}
	return nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:        loadCommon(),
		BindAddr:      getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		ReportTimeout: getDuration("API_REPORT_TIMEOUT", "10m"),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ReportTimeout <= 0 {
		return nil, fmt.Errorf("API_REPORT_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadBatch builds a Batch config from environment variables. The caller
// applies flag overrides and then calls Validate.
func LoadBatch() *Batch {
	return &Batch{Common: loadCommon()}
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:         loadCommon(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		RequestTopic:   getEnv("KAFKA_REQUEST_TOPIC", "report_requests"),
		ResultTopic:    getEnv("KAFKA_RESULT_TOPIC", "portfolio_reports"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "report-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 1000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "1h"),
		RunTimeout:     getDuration("WORKER_RUN_TIMEOUT", "30m"),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.RequestTopic == c.ResultTopic {
		return nil, fmt.Errorf("KAFKA_REQUEST_TOPIC and KAFKA_RESULT_TOPIC must differ")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.RunTimeout <= 0 {
		return nil, fmt.Errorf("WORKER_RUN_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Elasticsearch: loadElasticsearch(),
		Interval:      getDuration("RETENTION_CRON", "24h"),
		MaxAge:        getDuration("RETENTION_MAX_AGE", "168h"),
		BatchSize:     getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
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
