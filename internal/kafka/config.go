package kafka

import (
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	cfg     *sarama.Config
	brokers []string
	topics  []string
	group   string
	sync    bool
	logger  *slog.Logger
}

type ConfigOpts func(*Config)

func WithSyncProducer() ConfigOpts {
	return func(c *Config) {
		c.sync = true
		c.cfg.Producer.RequiredAcks = sarama.WaitForAll
	}
}

func WithRetry(maxRetries int, backoff time.Duration) ConfigOpts {
	return func(c *Config) {
		c.cfg.Producer.Retry.Max = maxRetries
		c.cfg.Producer.Retry.Backoff = backoff
	}
}

func WithBrokers(brokers ...string) ConfigOpts {
	return func(c *Config) {
		c.brokers = brokers
	}
}

func WithTopics(topics ...string) ConfigOpts {
	return func(c *Config) {
		c.topics = topics
	}
}

func WithConsumerGroup(group string) ConfigOpts {
	return func(c *Config) {
		c.group = group
	}
}

func WithConsumeOldest() ConfigOpts {
	return func(c *Config) {
		c.cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
}

func WithLogger(logger *slog.Logger) ConfigOpts {
	return func(c *Config) {
		c.logger = logger
	}
}

func NewConfig(opts ...ConfigOpts) *Config {
	s := sarama.NewConfig()
	s.Version = sarama.V2_8_0_0
	s.Producer.RequiredAcks = sarama.WaitForLocal
	s.Producer.Return.Successes = true
	s.Producer.Return.Errors = true
	// keyed messages must keep per-document order
	s.Producer.Partitioner = sarama.NewHashPartitioner
	cfg := &Config{
		cfg:    s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.logger = cfg.logger.With("component", "kafka")
	return cfg
}

func (c *Config) IsSync() bool {
	return c.sync
}

func (c *Config) GetTopics() []string {
	return c.topics
}

func (c *Config) AddTopics(topics ...string) {
	c.topics = append(c.topics, topics...)
}

func (c *Config) GetBrokers() []string {
	return c.brokers
}

// GetGroup falls back to the topic name, which is how single-topic
// deployments name their group.
func (c *Config) GetGroup(topic string) string {
	if c.group != "" {
		return c.group
	}
	return topic
}

func (c *Config) GetConfig() *sarama.Config {
	return c.cfg
}
