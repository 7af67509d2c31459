package kafka

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/BRO3886/survey-index/internal/queue"
)

type ConsumerGroupHandler struct {
	handler queue.MessageHandler
	logger  *slog.Logger
}

func NewConsumerGroupHandler(handler queue.MessageHandler, logger *slog.Logger) sarama.ConsumerGroupHandler {
	return &ConsumerGroupHandler{
		handler: handler,
		logger:  logger,
	}
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler. A failed message is
// left unmarked and ends the claim, so it is redelivered after the next
// rebalance.
func (c *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) (err error) {
	c.logger.Info("consuming claim", "topic", claim.Topic(), "partition", claim.Partition())
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "topic", claim.Topic(), "panic", r)
			err = fmt.Errorf("kafka: handler panic: %v", r)
		}
	}()

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler(session.Context(), message.Value); err != nil {
				c.logger.Error("error handling message",
					"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "err", err)
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	return nil
}
