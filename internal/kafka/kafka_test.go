package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BRO3886/survey-index/internal/logging"
)

func TestNewConfig(t *testing.T) {
	c := NewConfig(
		WithBrokers("k1:9092", "k2:9092"),
		WithTopics("changes"),
		WithSyncProducer(),
		WithConsumeOldest(),
		WithRetry(5, 250*time.Millisecond),
		WithLogger(logging.Discard()),
	)

	assert.True(t, c.IsSync())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.GetBrokers())
	assert.Equal(t, []string{"changes"}, c.GetTopics())
	assert.Equal(t, sarama.WaitForAll, c.GetConfig().Producer.RequiredAcks)
	assert.Equal(t, sarama.OffsetOldest, c.GetConfig().Consumer.Offsets.Initial)
	assert.Equal(t, 5, c.GetConfig().Producer.Retry.Max)
	assert.Equal(t, 250*time.Millisecond, c.GetConfig().Producer.Retry.Backoff)

	assert.Equal(t, "changes", c.GetGroup("changes"))
	WithConsumerGroup("survey-index")(c)
	assert.Equal(t, "survey-index", c.GetGroup("changes"))

	c.AddTopics("more")
	assert.Equal(t, []string{"changes", "more"}, c.GetTopics())
}

func TestEnqueuer_SyncKeyed(t *testing.T) {
	c := NewConfig(WithSyncProducer(), WithLogger(logging.Discard()))
	producer := mocks.NewSyncProducer(t, c.GetConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "r1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	e := newSyncEnqueuer(producer, c)
	ctx := context.Background()
	require.NoError(t, e.Enqueue(ctx, "changes", "r1", []byte(`{"id":"r1"}`)))
	assert.ErrorIs(t, e.Enqueue(ctx, "changes", "r2", []byte(`{"id":"r2"}`)), sarama.ErrOutOfBrokers)
	require.NoError(t, e.Close())
}

func TestEnqueuer_SyncCancelled(t *testing.T) {
	c := NewConfig(WithSyncProducer(), WithLogger(logging.Discard()))
	producer := mocks.NewSyncProducer(t, c.GetConfig())
	e := newSyncEnqueuer(producer, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Enqueue(ctx, "changes", "r1", nil), context.Canceled)
	require.NoError(t, e.Close())
}

func TestEnqueuer_Async(t *testing.T) {
	c := NewConfig(WithLogger(logging.Discard()))
	producer := mocks.NewAsyncProducer(t, c.GetConfig())
	producer.ExpectInputAndSucceed()
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	e := newAsyncEnqueuer(producer, c)
	ctx := context.Background()
	require.NoError(t, e.Enqueue(ctx, "changes", "r1", []byte(`{}`)))
	assert.ErrorIs(t, e.Enqueue(ctx, "changes", "r2", []byte(`{}`)), sarama.ErrOutOfBrokers)
	require.NoError(t, e.Close())
}

// scriptedProducer fails the first message once release is closed and
// acknowledges every later one.
type scriptedProducer struct {
	sarama.AsyncProducer
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
	onFirst   func()
	release   chan struct{}
}

func newScriptedProducer(onFirst func()) *scriptedProducer {
	p := &scriptedProducer{
		input:     make(chan *sarama.ProducerMessage),
		successes: make(chan *sarama.ProducerMessage),
		errors:    make(chan *sarama.ProducerError),
		onFirst:   onFirst,
		release:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *scriptedProducer) run() {
	defer close(p.errors)
	defer close(p.successes)
	first := true
	for msg := range p.input {
		if first {
			first = false
			p.onFirst()
			<-p.release
			p.errors <- &sarama.ProducerError{Msg: msg, Err: sarama.ErrOutOfBrokers}
			continue
		}
		p.successes <- msg
	}
}

func (p *scriptedProducer) Input() chan<- *sarama.ProducerMessage { return p.input }
func (p *scriptedProducer) Successes() <-chan *sarama.ProducerMessage { return p.successes }
func (p *scriptedProducer) Errors() <-chan *sarama.ProducerError { return p.errors }

func (p *scriptedProducer) Close() error {
	close(p.input)
	return nil
}

func TestEnqueuer_AsyncCancelledResultIsNotReused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	producer := newScriptedProducer(cancel)
	e := newAsyncEnqueuer(producer, NewConfig(WithLogger(logging.Discard())))

	// the first message is accepted, then its caller stops waiting
	assert.ErrorIs(t, e.Enqueue(ctx, "changes", "r1", []byte(`{}`)), context.Canceled)

	// its late failure must not be reported for the next message
	close(producer.release)
	require.NoError(t, e.Enqueue(context.Background(), "changes", "r2", []byte(`{}`)))
	require.NoError(t, e.Close())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "changes" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(values ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Topic: "changes", Offset: int64(i), Value: []byte(v)}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func TestConsumeClaim_MarksHandledMessages(t *testing.T) {
	var seen []string
	h := NewConsumerGroupHandler(func(ctx context.Context, data []byte) error {
		seen = append(seen, string(data))
		return nil
	}, logging.Discard())

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, newClaim("a", "b", "c")))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []int64{0, 1, 2}, session.marked)
}

func TestConsumeClaim_StopsOnError(t *testing.T) {
	boom := errors.New("store down")
	h := NewConsumerGroupHandler(func(ctx context.Context, data []byte) error {
		if string(data) == "b" {
			return boom
		}
		return nil
	}, logging.Discard())

	session := &fakeSession{ctx: context.Background()}
	assert.ErrorIs(t, h.ConsumeClaim(session, newClaim("a", "b", "c")), boom)
	assert.Equal(t, []int64{0}, session.marked)
}

func TestConsumeClaim_RecoversPanic(t *testing.T) {
	h := NewConsumerGroupHandler(func(ctx context.Context, data []byte) error {
		panic("bad message")
	}, logging.Discard())

	session := &fakeSession{ctx: context.Background()}
	assert.Error(t, h.ConsumeClaim(session, newClaim("a")))
	assert.Empty(t, session.marked)
}
