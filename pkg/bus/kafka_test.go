package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeCommitter struct {
	committed []kafka.Message
	err       error
}

func (c *fakeCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.committed = append(c.committed, msgs...)
	return nil
}

func newFakeKafkaBus(t *testing.T) (*KafkaBus, *fakeWriter) {
	t.Helper()
	b, err := NewKafkaBus(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	w := &fakeWriter{}
	b.writer = w
	return b, w
}

func TestNewKafkaBusRequiresBroker(t *testing.T) {
	_, err := NewKafkaBus(KafkaConfig{})
	assert.Error(t, err)
}

func TestKafkaBusSettlement(t *testing.T) {
	msg := kafka.Message{
		Topic:   "message_events",
		Key:     []byte("k"),
		Value:   []byte(`{"event_type":"new_message"}`),
		Offset:  7,
		Headers: []kafka.Header{{Key: "trace", Value: []byte("abc")}},
	}

	t.Run("AckCommitsOffset", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		c := &fakeCommitter{}

		d := b.track("message_events", "orchestrator_message_events", c, msg)
		assert.False(t, d.Redelivered)
		assert.Equal(t, msg.Value, d.Body)

		require.NoError(t, d.Ack())
		require.Len(t, c.committed, 1)
		assert.Equal(t, int64(7), c.committed[0].Offset)
		assert.Empty(t, w.written)
	})

	t.Run("RequeueRepublishesThenCommits", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		c := &fakeCommitter{}

		require.NoError(t, b.track("message_events", "q", c, msg).Nack(true))

		require.Len(t, w.written, 1)
		retry := w.written[0]
		assert.Equal(t, "message_events", retry.Topic)
		assert.Equal(t, msg.Key, retry.Key)
		assert.Equal(t, msg.Value, retry.Value)
		assert.True(t, isRedelivered(retry))
		assert.Contains(t, retry.Headers, kafka.Header{Key: "trace", Value: []byte("abc")})
		assert.Len(t, msg.Headers, 1)

		require.Len(t, c.committed, 1)
		assert.Equal(t, int64(7), c.committed[0].Offset)
	})

	t.Run("RequeueOfRedeliveryMarksOnce", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		c := &fakeCommitter{}

		d := b.track("message_events", "q", c, msg)
		require.NoError(t, d.Nack(true))
		again := b.track("message_events", "q", c, w.written[0])
		assert.True(t, again.Redelivered)
		require.NoError(t, again.Nack(true))

		require.Len(t, w.written, 2)
		marks := 0
		for _, h := range w.written[1].Headers {
			if h.Key == redeliveredHeader {
				marks++
			}
		}
		assert.Equal(t, 1, marks)
	})

	t.Run("RequeueKeepsOffsetWhenRepublishFails", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		w.err = errors.New("leader not available")
		c := &fakeCommitter{}

		err := b.track("message_events", "q", c, msg).Nack(true)
		assert.ErrorIs(t, err, w.err)
		assert.Empty(t, c.committed)
	})

	t.Run("RejectCommitsWithoutRepublish", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		c := &fakeCommitter{}

		require.NoError(t, b.track("message_events", "q", c, msg).Nack(false))
		assert.Empty(t, w.written)
		assert.Len(t, c.committed, 1)
	})

	t.Run("CommitErrorReturned", func(t *testing.T) {
		b, _ := newFakeKafkaBus(t)
		c := &fakeCommitter{err: errors.New("rebalance in progress")}

		assert.ErrorIs(t, b.track("message_events", "q", c, msg).Ack(), c.err)
		assert.Empty(t, b.inflight)
	})

	t.Run("UnknownTag", func(t *testing.T) {
		b, _ := newFakeKafkaBus(t)
		assert.ErrorIs(t, b.Ack(9), ErrUnknownTag)
		assert.ErrorIs(t, b.Nack(9, false), ErrUnknownTag)
	})
}

func TestIsRedelivered(t *testing.T) {
	assert.False(t, isRedelivered(kafka.Message{}))
	assert.False(t, isRedelivered(kafka.Message{Headers: []kafka.Header{{Key: "trace"}}}))
	assert.True(t, isRedelivered(kafka.Message{Headers: []kafka.Header{{Key: "trace"}, {Key: redeliveredHeader, Value: []byte("1")}}}))
}

func TestKafkaBusConnection(t *testing.T) {
	t.Run("UnreachableBroker", func(t *testing.T) {
		b, _ := newFakeKafkaBus(t)

		assert.ErrorIs(t, b.Health(), ErrConnectionLost)
		err := b.Subscribe(context.Background(), "product_events", "q", func(context.Context, Publisher, *Delivery) {
			t.Fatal("handler must not run without a broker")
		})
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("ClosedBus", func(t *testing.T) {
		b, w := newFakeKafkaBus(t)
		c := &fakeCommitter{}
		d := b.track("message_events", "q", c, kafka.Message{Topic: "message_events", Value: []byte("x")})

		require.NoError(t, b.Close())
		require.NoError(t, b.Close())
		assert.True(t, w.closed)

		assert.ErrorIs(t, b.Health(), ErrClosed)
		assert.ErrorIs(t, b.Publish(context.Background(), "message_events", []byte("x")), ErrClosed)
		assert.ErrorIs(t, b.Subscribe(context.Background(), "message_events", "q", nil), ErrClosed)

		assert.ErrorIs(t, d.Nack(true), ErrClosed)
		assert.Empty(t, c.committed)
	})
}
