package queue

import "context"

// Enqueuer publishes change messages. key routes every change of one
// document to the same partition.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic, key string, data []byte) error
	Close() error
}

type MessageHandler func(ctx context.Context, data []byte) error

// Dequeuer blocks delivering messages to handler until ctx is done.
type Dequeuer interface {
	Dequeue(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}
