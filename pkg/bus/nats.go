package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"shopchat/pkg/log"
)

// NATSConfig JetStream bus configuration
type NATSConfig struct {
	URL            string
	Name           string
	ReconnectDelay time.Duration
	PublishTimeout time.Duration
	AckWait        time.Duration
}

// NATSBus maps each exchange onto a JetStream stream (interest retention) and each
// queue onto a durable consumer of that stream, which gives fanout across queues.
type NATSBus struct {
	config NATSConfig
	nc     *nats.Conn
	js     jetstream.JetStream

	mu       sync.Mutex
	lost     chan struct{} // closed when the connection drops, replaced on reconnect
	inflight map[uint64]jetstream.Msg
	nextTag  atomic.Uint64
}

// NewNATSBus connects to the NATS server. The client reconnects forever.
func NewNATSBus(config NATSConfig) (*NATSBus, error) {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.AckWait <= 0 {
		config.AckWait = 2 * time.Minute
	}

	b := &NATSBus{
		config:   config,
		lost:     make(chan struct{}),
		inflight: make(map[uint64]jetstream.Msg),
	}

	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(config.ReconnectDelay),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithFields(map[string]interface{}{"error": fmt.Sprint(err)}).Warn("NATS disconnected")
			b.signalLost()
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.WithField("url", conn.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			b.signalLost()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	b.nc = nc
	b.js = js
	return b, nil
}

func (b *NATSBus) signalLost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.lost:
	default:
		close(b.lost)
	}
}

func (b *NATSBus) lostSignal() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.lost:
		if b.nc != nil && b.nc.IsConnected() {
			b.lost = make(chan struct{})
		}
	default:
	}
	return b.lost
}

func streamName(exchange string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(exchange))
}

func subjectName(exchange string) string {
	return "bus." + exchange
}

// Declare creates or updates the stream backing exchange
func (b *NATSBus) Declare(ctx context.Context, exchange string) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName(exchange),
		Subjects:  []string{subjectName(exchange)},
		Retention: jetstream.InterestPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish publishes body on exchange and waits for the stream acknowledgement
func (b *NATSBus) Publish(ctx context.Context, exchange string, body []byte) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
	defer cancel()

	if _, err := b.js.Publish(ctx, subjectName(exchange), body); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", exchange, err)
	}
	return nil
}

// Subscribe consumes the durable consumer named queue on exchange's stream
func (b *NATSBus) Subscribe(ctx context.Context, exchange, queue string, handler Handler) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	lost := b.lostSignal()
	if !b.nc.IsConnected() {
		return fmt.Errorf("%w: nats not connected", ErrConnectionLost)
	}

	if err := b.Declare(ctx, exchange); err != nil {
		return err
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName(exchange), jetstream.ConsumerConfig{
		Name:          queue,
		Durable:       queue,
		FilterSubject: subjectName(exchange),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.config.AckWait,
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", queue, err)
	}

	consumeErr := make(chan error, 1)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(ctx, b, b.track(exchange, queue, msg))
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		select {
		case consumeErr <- err:
		default:
		}
	}))
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}
	defer cc.Stop()

	log.WithFields(map[string]interface{}{
		"exchange": exchange,
		"queue":    queue,
	}).Info("Subscribed to JetStream consumer")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return fmt.Errorf("%w: nats disconnected", ErrConnectionLost)
		case err := <-consumeErr:
			if errors.Is(err, jetstream.ErrConsumerDeleted) || errors.Is(err, jetstream.ErrConsumerNotFound) {
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
			log.WithFields(map[string]interface{}{
				"queue": queue,
				"error": err.Error(),
			}).Warn("JetStream consume error")
		}
	}
}

// track registers msg as in flight until it is settled through the returned delivery
func (b *NATSBus) track(exchange, queue string, msg jetstream.Msg) *Delivery {
	redelivered := false
	if meta, err := msg.Metadata(); err == nil {
		redelivered = meta.NumDelivered > 1
	}

	tag := b.nextTag.Add(1)
	b.mu.Lock()
	b.inflight[tag] = msg
	b.mu.Unlock()

	return NewDelivery(b, tag, exchange, queue, msg.Data(), redelivered)
}

func (b *NATSBus) take(tag uint64) (jetstream.Msg, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.inflight[tag]
	if !ok {
		return nil, ErrUnknownTag
	}
	delete(b.inflight, tag)
	return msg, nil
}

// Ack acknowledges the message with tag
func (b *NATSBus) Ack(tag uint64) error {
	msg, err := b.take(tag)
	if err != nil {
		return err
	}
	return msg.Ack()
}

// Nack naks the message for redelivery when requeue is true, otherwise terminates it
func (b *NATSBus) Nack(tag uint64, requeue bool) error {
	msg, err := b.take(tag)
	if err != nil {
		return err
	}
	if requeue {
		return msg.Nak()
	}
	return msg.Term()
}

// Health checks the health of the connection
func (b *NATSBus) Health() error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	if !b.nc.IsConnected() {
		return ErrConnectionLost
	}
	return nil
}

// Close drains and closes the connection. A connection still retrying is closed
// without draining.
func (b *NATSBus) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	if !b.nc.IsConnected() {
		b.nc.Close()
		return nil
	}
	return b.nc.Drain()
}
