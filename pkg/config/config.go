// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Badger, Pipeline, Similarity, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends and index modes accepted by the configuration.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"

	IndexModeSync  = "sync"
	IndexModeAsync = "async"
)

// DefaultStopWords is the stop-word list applied by the phrase pipeline when
// the configuration does not provide one.
var DefaultStopWords = []string{
	"của", "là", "và", "có", "đã",
	"những", "các", "với",
	"cũng", "đó", "như", "nhiều",
	"còn", "mà", "thế", "đi", "nhưng",
	"nhất", "theo", "sẽ",
	"đang", "rất", "hơn",
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Badger     BadgerConfig     `yaml:"badger"`
	Storage    StorageConfig    `yaml:"storage"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Index      IndexConfig      `yaml:"index"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Groups  KafkaGroups `yaml:"groups"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaGroups names the consumer group of each consuming service.
type KafkaGroups struct {
	Indexer  string `yaml:"indexer"`
	Searcher string `yaml:"searcher"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents string `yaml:"documentEvents"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// BadgerConfig controls the embedded key-value store.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"inMemory"`
}

// StorageConfig selects the backend for each store.
type StorageConfig struct {
	Documents string `yaml:"documents"`
	Index     string `yaml:"index"`
}

// PipelineConfig drives phrase extraction at ingestion time.
type PipelineConfig struct {
	MaxPhraseLength    int      `yaml:"maxPhraseLength"`
	KeepMergedOnly     bool     `yaml:"keepMergedOnly"`
	SmartFilter        bool     `yaml:"smartFilter"`
	RelevanceThreshold float64  `yaml:"relevanceThreshold"`
	StopWords          []string `yaml:"stopWords"`
}

// IngestConfig controls how ingested documents reach the frequency index.
type IngestConfig struct {
	IndexMode        string `yaml:"indexMode"`
	PersistPhrases   bool   `yaml:"persistPhrases"`
	IndexConcurrency int    `yaml:"indexConcurrency"`
}

// IndexConfig bounds ranked queries against the frequency index.
type IndexConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
}

// SimilarityConfig controls fingerprinting and corpus scans.
type SimilarityConfig struct {
	NGramSize       int           `yaml:"ngramSize"`
	WindowSize      int           `yaml:"windowSize"`
	ResultThreshold float64       `yaml:"resultThreshold"`
	SearchLimit     int           `yaml:"searchLimit"`
	ScanTimeout     time.Duration `yaml:"scanTimeout"`
	Workers         int           `yaml:"workers"`
	CacheResults    bool          `yaml:"cacheResults"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GatewayConfig holds the API gateway port and upstream service URLs.
type GatewayConfig struct {
	Port             int           `yaml:"port"`
	IngestionURL     string        `yaml:"ingestionUrl"`
	SearcherURL      string        `yaml:"searcherUrl"`
	RateLimitWindow  time.Duration `yaml:"rateLimitWindow"`
	DefaultRateLimit int           `yaml:"defaultRateLimit"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "kokuto",
			User:            "kokuto",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Groups: KafkaGroups{
				Indexer:  "kokuto-indexer",
				Searcher: "kokuto-searcher",
			},
			Topics: KafkaTopics{
				DocumentEvents: "document-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Badger: BadgerConfig{
			Dir: "data/badger",
		},
		Storage: StorageConfig{
			Documents: BackendPostgres,
			Index:     BackendRedis,
		},
		Pipeline: PipelineConfig{
			MaxPhraseLength:    3,
			SmartFilter:        true,
			RelevanceThreshold: 50,
			StopWords:          append([]string(nil), DefaultStopWords...),
		},
		Ingest: IngestConfig{
			IndexMode:        IndexModeSync,
			PersistPhrases:   true,
			IndexConcurrency: 16,
		},
		Index: IndexConfig{
			DefaultLimit: 500,
			MaxLimit:     5000,
		},
		Similarity: SimilarityConfig{
			NGramSize:       5,
			WindowSize:      50,
			ResultThreshold: 0.5,
			SearchLimit:     50,
			ScanTimeout:     30 * time.Second,
			Workers:         8,
			CacheResults:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Gateway: GatewayConfig{
			Port:             8082,
			IngestionURL:     "http://localhost:8081",
			SearcherURL:      "http://localhost:8080",
			RateLimitWindow:  time.Minute,
			DefaultRateLimit: 100,
		},
	}
}

// Validate checks cross-field constraints and rejects values the services
// cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Pipeline.MaxPhraseLength < 1 {
		problems = append(problems, "pipeline.maxPhraseLength must be at least 1")
	}
	if c.Pipeline.RelevanceThreshold <= 0 || c.Pipeline.RelevanceThreshold > 100 {
		problems = append(problems, "pipeline.relevanceThreshold must be in (0, 100]")
	}
	switch c.Storage.Documents {
	case BackendPostgres, BackendBadger:
	default:
		problems = append(problems, fmt.Sprintf("storage.documents: unknown backend %q", c.Storage.Documents))
	}
	switch c.Storage.Index {
	case BackendRedis, BackendBadger:
	default:
		problems = append(problems, fmt.Sprintf("storage.index: unknown backend %q", c.Storage.Index))
	}
	switch c.Ingest.IndexMode {
	case IndexModeSync:
	case IndexModeAsync:
		if !c.Kafka.Enabled() {
			problems = append(problems, "ingest.indexMode async requires kafka.brokers")
		}
	default:
		problems = append(problems, fmt.Sprintf("ingest.indexMode: unknown mode %q", c.Ingest.IndexMode))
	}
	if c.Ingest.IndexConcurrency < 1 {
		problems = append(problems, "ingest.indexConcurrency must be at least 1")
	}
	if c.Index.DefaultLimit < 1 || c.Index.MaxLimit < c.Index.DefaultLimit {
		problems = append(problems, "index limits must satisfy 1 <= defaultLimit <= maxLimit")
	}
	if c.Similarity.NGramSize < 1 {
		problems = append(problems, "similarity.ngramSize must be at least 1")
	}
	if c.Similarity.WindowSize < 1 {
		problems = append(problems, "similarity.windowSize must be at least 1")
	}
	if c.Similarity.ResultThreshold < 0 || c.Similarity.ResultThreshold > 1 {
		problems = append(problems, "similarity.resultThreshold must be in [0, 1]")
	}
	if c.Similarity.SearchLimit < 1 {
		problems = append(problems, "similarity.searchLimit must be at least 1")
	}
	if c.Similarity.Workers < 1 {
		problems = append(problems, "similarity.workers must be at least 1")
	}
	if c.Badger.Dir == "" && !c.Badger.InMemory &&
		(c.Storage.Documents == BackendBadger || c.Storage.Index == BackendBadger) {
		problems = append(problems, "badger.dir is required unless badger.inMemory is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides reads KK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KK_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("KK_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("KK_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("KK_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("KK_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("KK_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v, ok := os.LookupEnv("KK_KAFKA_BROKERS"); ok {
		if v == "" {
			cfg.Kafka.Brokers = nil
		} else {
			cfg.Kafka.Brokers = strings.Split(v, ",")
		}
	}
	if v := os.Getenv("KK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KK_BADGER_DIR"); v != "" {
		cfg.Badger.Dir = v
	}
	if v := os.Getenv("KK_STORAGE_DOCUMENTS"); v != "" {
		cfg.Storage.Documents = v
	}
	if v := os.Getenv("KK_STORAGE_INDEX"); v != "" {
		cfg.Storage.Index = v
	}
	if v := os.Getenv("KK_INGEST_INDEX_MODE"); v != "" {
		cfg.Ingest.IndexMode = v
	}
	if v := os.Getenv("KK_SIMILARITY_SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Similarity.ScanTimeout = d
		}
	}
	if v := os.Getenv("KK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("KK_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("KK_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
	if v := os.Getenv("KK_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
}
