package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"shopchat/pkg/log"
)

const redeliveredHeader = "x-redelivered"

// KafkaConfig Kafka bus configuration
type KafkaConfig struct {
	Brokers        []string
	PublishTimeout time.Duration
	MaxWait        time.Duration
}

// KafkaBus maps each exchange onto a topic and each queue onto a consumer group,
// so every queue sees every message. Ack commits the offset; a requeue
// republishes the message to the topic before committing.
type KafkaBus struct {
	config KafkaConfig
	writer messageWriter

	mu       sync.Mutex
	inflight map[uint64]kafkaInflight
	nextTag  atomic.Uint64
	closed   atomic.Bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type offsetCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaInflight struct {
	reader offsetCommitter
	msg    kafka.Message
}

// NewKafkaBus creates a Kafka bus with one long-lived writer
func NewKafkaBus(config KafkaConfig) (*KafkaBus, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	return &KafkaBus{
		config: config,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           config.PublishTimeout,
		},
		inflight: make(map[uint64]kafkaInflight),
	}, nil
}

// Declare creates the topic backing exchange
func (b *KafkaBus) Declare(ctx context.Context, exchange string) error {
	conn, err := (&kafka.Dialer{Timeout: b.config.PublishTimeout}).DialContext(ctx, "tcp", b.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	cconn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer cconn.Close()

	err = cconn.CreateTopics(kafka.TopicConfig{
		Topic:             exchange,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish writes body to the exchange topic
func (b *KafkaBus) Publish(ctx context.Context, exchange string, body []byte) error {
	return b.publish(ctx, kafka.Message{Topic: exchange, Value: body})
}

func (b *KafkaBus) publish(ctx context.Context, msg kafka.Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe reads the exchange topic as consumer group queue
func (b *KafkaBus) Subscribe(ctx context.Context, exchange, queue string, handler Handler) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.Declare(ctx, exchange); err != nil {
		return err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.config.Brokers,
		Topic:       exchange,
		GroupID:     queue,
		StartOffset: kafka.FirstOffset,
		MaxWait:     b.config.MaxWait,
	})
	defer reader.Close()

	log.WithFields(map[string]interface{}{
		"exchange": exchange,
		"queue":    queue,
	}).Info("Subscribed to Kafka consumer group")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		handler(ctx, b, b.track(exchange, queue, reader, msg))
	}
}

// track registers msg as in flight until it is settled through the returned delivery
func (b *KafkaBus) track(exchange, queue string, reader offsetCommitter, msg kafka.Message) *Delivery {
	tag := b.nextTag.Add(1)
	b.mu.Lock()
	b.inflight[tag] = kafkaInflight{reader: reader, msg: msg}
	b.mu.Unlock()

	return NewDelivery(b, tag, exchange, queue, msg.Value, isRedelivered(msg))
}

func isRedelivered(msg kafka.Message) bool {
	for _, h := range msg.Headers {
		if h.Key == redeliveredHeader {
			return true
		}
	}
	return false
}

// redeliveredHeaders copies headers, marking the copy redelivered exactly once
func redeliveredHeaders(headers []kafka.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != redeliveredHeader {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: redeliveredHeader, Value: []byte("1")})
}

func (b *KafkaBus) take(tag uint64) (kafkaInflight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inflight[tag]
	if !ok {
		return kafkaInflight{}, ErrUnknownTag
	}
	delete(b.inflight, tag)
	return in, nil
}

// Ack commits the message offset
func (b *KafkaBus) Ack(tag uint64) error {
	in, err := b.take(tag)
	if err != nil {
		return err
	}
	return in.reader.CommitMessages(context.Background(), in.msg)
}

// Nack commits the offset, republishing the message first when requeue is true
func (b *KafkaBus) Nack(tag uint64, requeue bool) error {
	in, err := b.take(tag)
	if err != nil {
		return err
	}
	if requeue {
		retry := kafka.Message{
			Topic:   in.msg.Topic,
			Key:     in.msg.Key,
			Value:   in.msg.Value,
			Headers: redeliveredHeaders(in.msg.Headers),
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.config.PublishTimeout)
		defer cancel()
		if err := b.publish(ctx, retry); err != nil {
			return err
		}
	}
	return in.reader.CommitMessages(context.Background(), in.msg)
}

// Health dials the first broker
func (b *KafkaBus) Health() error {
	if b.closed.Load() {
		return ErrClosed
	}
	conn, err := net.DialTimeout("tcp", b.config.Brokers[0], 2*time.Second)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return conn.Close()
}

// Close closes the writer
func (b *KafkaBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.writer.Close()
}
