package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/BRO3886/survey-index/internal/queue"
)

type KafkaEnqueuer struct {
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer
	cfg           *Config
	logger        *slog.Logger
	// the async producer reports results in send order; one message in
	// flight at a time keeps a result paired with its caller
	asyncMu sync.Mutex
	// results still owed for messages whose caller gave up waiting
	pending int
}

func NewEnqueuer(ctx context.Context, c *Config) (queue.Enqueuer, error) {
	if c.IsSync() {
		syncProducer, err := sarama.NewSyncProducer(c.GetBrokers(), c.GetConfig())
		if err != nil {
			return nil, err
		}
		return newSyncEnqueuer(syncProducer, c), nil
	}

	asyncProducer, err := sarama.NewAsyncProducer(c.GetBrokers(), c.GetConfig())
	if err != nil {
		return nil, err
	}
	return newAsyncEnqueuer(asyncProducer, c), nil
}

func newSyncEnqueuer(p sarama.SyncProducer, c *Config) *KafkaEnqueuer {
	return &KafkaEnqueuer{syncProducer: p, cfg: c, logger: c.logger}
}

func newAsyncEnqueuer(p sarama.AsyncProducer, c *Config) *KafkaEnqueuer {
	return &KafkaEnqueuer{asyncProducer: p, cfg: c, logger: c.logger}
}

func (k *KafkaEnqueuer) Enqueue(ctx context.Context, topic, key string, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if k.syncProducer != nil {
		return k.enqueueSync(ctx, msg)
	}
	return k.enqueueAsync(ctx, msg)
}

func (k *KafkaEnqueuer) enqueueSync(ctx context.Context, msg *sarama.ProducerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, offset, err := k.syncProducer.SendMessage(msg)
	if err != nil {
		return err
	}
	k.logger.Debug("message sent", "topic", msg.Topic, "partition", partition, "offset", offset)
	return nil
}

func (k *KafkaEnqueuer) enqueueAsync(ctx context.Context, msg *sarama.ProducerMessage) error {
	k.asyncMu.Lock()
	defer k.asyncMu.Unlock()

	if err := k.drainPending(ctx); err != nil {
		return err
	}

	select {
	case k.asyncProducer.Input() <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case sent := <-k.asyncProducer.Successes():
		k.logger.Debug("message sent", "topic", sent.Topic, "partition", sent.Partition, "offset", sent.Offset)
		return nil
	case perr := <-k.asyncProducer.Errors():
		if perr == nil {
			return errors.New("kafka: producer closed")
		}
		return perr.Err
	case <-ctx.Done():
		k.pending++
		return ctx.Err()
	}
}

// drainPending reads the results of abandoned sends so the next caller does
// not take one of them for its own.
func (k *KafkaEnqueuer) drainPending(ctx context.Context) error {
	for k.pending > 0 {
		select {
		case sent := <-k.asyncProducer.Successes():
			if sent != nil {
				k.logger.Debug("abandoned message sent", "topic", sent.Topic, "offset", sent.Offset)
			}
		case perr := <-k.asyncProducer.Errors():
			if perr != nil {
				k.logger.Warn("abandoned message failed", "err", perr.Err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		k.pending--
	}
	return nil
}

func (k *KafkaEnqueuer) Close() error {
	if k.syncProducer != nil {
		if err := k.syncProducer.Close(); err != nil {
			return err
		}
	}
	if k.asyncProducer != nil {
		if err := k.asyncProducer.Close(); err != nil {
			return err
		}
	}
	return nil
}
