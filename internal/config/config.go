package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/BRO3886/survey-index/internal/logging"
)

const (
	DefaultPath = "configs/config.yaml"
	EnvPrefix   = "SURVEY_INDEX_"

	BackendSQLite     = "sqlite"
	BackendOpensearch = "opensearch"
)

type Config struct {
	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Topic   struct {
			Name       string `koanf:"name"`
			Partitions int    `koanf:"partitions"`
		} `koanf:"topic"`
		ConsumerGroup string `koanf:"consumer_group"`
		Sync          bool   `koanf:"sync"`
		Retry         struct {
			Max     int `koanf:"max"`
			Backoff int `koanf:"backoff"`
		} `koanf:"retry"`
	} `koanf:"kafka"`
	Store struct {
		Backend string `koanf:"backend"`
	} `koanf:"store"`
	Opensearch struct {
		URLs       []string `koanf:"urls"`
		Username   string   `koanf:"username"`
		Password   string   `koanf:"password"`
		MaxRetries int      `koanf:"max_retries"`
		Insecure   bool     `koanf:"insecure"`
		Index      struct {
			Name          string `koanf:"name"`
			BuffSize      int    `koanf:"buff_size"`
			FlushInterval int    `koanf:"flush_interval"`
		} `koanf:"index"`
	} `koanf:"opensearch"`
	SQLite struct {
		Path string `koanf:"path"`
	} `koanf:"sqlite"`
	Indexer struct {
		DedupeSize int `koanf:"dedupe_size"`
	} `koanf:"indexer"`
	HTTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"http"`
	Log logging.Config `koanf:"log"`
}

// Load reads the YAML file at path, then applies SURVEY_INDEX_* environment
// overrides. Nested keys are separated by a double underscore, so
// SURVEY_INDEX_KAFKA__TOPIC__NAME sets kafka.topic.name.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	switch key {
	case "kafka.brokers", "opensearch.urls":
		return key, strings.Split(value, ",")
	}
	return key, value
}

func (c *Config) applyDefaults() {
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "survey-index"
	}
	if c.Kafka.Retry.Max == 0 {
		c.Kafka.Retry.Max = 3
	}
	if c.Kafka.Retry.Backoff == 0 {
		c.Kafka.Retry.Backoff = 100
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQLite
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "survey-index.db"
	}
	if c.Opensearch.Index.Name == "" {
		c.Opensearch.Index.Name = "survey-responses"
	}
	if c.Opensearch.Index.BuffSize == 0 {
		c.Opensearch.Index.BuffSize = 500
	}
	if c.Opensearch.Index.FlushInterval == 0 {
		c.Opensearch.Index.FlushInterval = 5
	}
	if c.Indexer.DedupeSize == 0 {
		c.Indexer.DedupeSize = 10000
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = logging.DefaultConfig().Level
	}
	if c.Log.Format == "" {
		c.Log.Format = logging.DefaultConfig().Format
	}
}

// Validate checks the settings every command needs. Kafka settings are
// checked by ValidateKafka, only where the change feed is used.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendOpensearch:
		if len(c.Opensearch.URLs) == 0 {
			errs = append(errs, errors.New("opensearch.urls is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of %s, %s", c.Store.Backend, BackendSQLite, BackendOpensearch))
	}
	if c.Indexer.DedupeSize < 0 {
		errs = append(errs, errors.New("indexer.dedupe_size must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) ValidateKafka() error {
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is empty"))
	}
	if c.Kafka.Topic.Name == "" {
		errs = append(errs, errors.New("kafka.topic.name is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid kafka config: %w", errors.Join(errs...))
	}
	return nil
}
