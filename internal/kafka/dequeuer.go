package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/BRO3886/survey-index/internal/queue"
)

type KafkaDequeuer struct {
	consumerGroups map[string]sarama.ConsumerGroup
	cfg            *Config
	logger         *slog.Logger
	m              sync.Mutex
}

func NewDequeuer(ctx context.Context, c *Config) (queue.Dequeuer, error) {
	consumerGroups := make(map[string]sarama.ConsumerGroup)
	for _, topic := range c.GetTopics() {
		consumerGroup, err := sarama.NewConsumerGroup(c.GetBrokers(), c.GetGroup(topic), c.GetConfig())
		if err != nil {
			return nil, err
		}
		consumerGroups[topic] = consumerGroup
	}
	return &KafkaDequeuer{
		consumerGroups: consumerGroups,
		cfg:            c,
		logger:         c.logger,
	}, nil
}

func (k *KafkaDequeuer) group(topic string) (sarama.ConsumerGroup, error) {
	k.m.Lock()
	defer k.m.Unlock()
	if consumerGroup, ok := k.consumerGroups[topic]; ok {
		return consumerGroup, nil
	}
	consumerGroup, err := sarama.NewConsumerGroup(k.cfg.GetBrokers(), k.cfg.GetGroup(topic), k.cfg.GetConfig())
	if err != nil {
		return nil, err
	}
	k.consumerGroups[topic] = consumerGroup
	return consumerGroup, nil
}

// Dequeue joins the consumer group for topic and keeps rejoining after
// rebalances until ctx is cancelled.
func (k *KafkaDequeuer) Dequeue(ctx context.Context, topic string, handler queue.MessageHandler) error {
	consumerGroup, err := k.group(topic)
	if err != nil {
		return err
	}

	h := NewConsumerGroupHandler(handler, k.logger)
	for {
		if err := consumerGroup.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			k.logger.Error("consume failed", "topic", topic, "err", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (k *KafkaDequeuer) Close() error {
	k.m.Lock()
	defer k.m.Unlock()
	var errs []error
	for topic, consumerGroup := range k.consumerGroups {
		if err := consumerGroup.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(k.consumerGroups, topic)
	}
	return errors.Join(errs...)
}
