package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryConfig memory bus configuration
type MemoryConfig struct {
	BufferSize     int           `json:"buffer_size"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// MemoryBus in-process fanout bus. Queues persist for the lifetime of the bus,
// so messages published while a subscriber is reconnecting are kept.
type MemoryBus struct {
	config    MemoryConfig
	mu        sync.RWMutex
	exchanges map[string]map[string]*memoryQueue // exchange -> bound queues
	queues    map[string]*memoryQueue
	pending   map[uint64]*memoryMessage
	nextTag   atomic.Uint64
	conn      chan struct{} // closed by Disconnect
	closed    bool
	done      chan struct{}
}

type memoryQueue struct {
	name     string
	messages chan *memoryMessage
}

type memoryMessage struct {
	exchange    string
	queue       *memoryQueue
	body        []byte
	redelivered bool
}

// NewMemoryBus creates a new in-process bus
func NewMemoryBus(config *MemoryConfig) *MemoryBus {
	cfg := MemoryConfig{BufferSize: 1000, PublishTimeout: 5 * time.Second}
	if config != nil {
		if config.BufferSize > 0 {
			cfg.BufferSize = config.BufferSize
		}
		if config.PublishTimeout > 0 {
			cfg.PublishTimeout = config.PublishTimeout
		}
	}

	return &MemoryBus{
		config:    cfg,
		exchanges: make(map[string]map[string]*memoryQueue),
		queues:    make(map[string]*memoryQueue),
		pending:   make(map[uint64]*memoryMessage),
		conn:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Declare creates the exchange if it does not exist
func (b *MemoryBus) Declare(ctx context.Context, exchange string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, ok := b.exchanges[exchange]; !ok {
		b.exchanges[exchange] = make(map[string]*memoryQueue)
	}
	return nil
}

// Publish fans body out to every queue bound to exchange
func (b *MemoryBus) Publish(ctx context.Context, exchange string, body []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	bound, ok := b.exchanges[exchange]
	if !ok {
		b.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotDeclared, exchange)
	}
	targets := make([]*memoryQueue, 0, len(bound))
	for _, q := range bound {
		targets = append(targets, q)
	}
	b.mu.RUnlock()

	for _, q := range targets {
		msg := &memoryMessage{exchange: exchange, queue: q, body: append([]byte(nil), body...)}
		if err := b.enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) enqueue(ctx context.Context, msg *memoryMessage) error {
	timer := time.NewTimer(b.config.PublishTimeout)
	defer timer.Stop()

	select {
	case msg.queue.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	case <-timer.C:
		return ErrPublishTimeout
	}
}

// Bind declares exchange and queue and binds them. Messages published after Bind
// are kept in queue until a subscriber consumes them.
func (b *MemoryBus) Bind(ctx context.Context, exchange, queue string) error {
	_, err := b.bind(exchange, queue)
	return err
}

func (b *MemoryBus) bind(exchange, queue string) (*memoryQueue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	bound, ok := b.exchanges[exchange]
	if !ok {
		bound = make(map[string]*memoryQueue)
		b.exchanges[exchange] = bound
	}
	q, ok := b.queues[queue]
	if !ok {
		q = &memoryQueue{name: queue, messages: make(chan *memoryMessage, b.config.BufferSize)}
		b.queues[queue] = q
	}
	bound[queue] = q
	return q, nil
}

// Subscribe binds queue to exchange and consumes it until ctx is done or Disconnect is called
func (b *MemoryBus) Subscribe(ctx context.Context, exchange, queue string, handler Handler) error {
	q, err := b.bind(exchange, queue)
	if err != nil {
		return err
	}

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return ErrClosed
		case <-conn:
			return fmt.Errorf("%w: memory bus disconnected", ErrConnectionLost)
		case msg := <-q.messages:
			select {
			case <-conn:
				_ = b.enqueue(context.Background(), msg)
				return fmt.Errorf("%w: memory bus disconnected", ErrConnectionLost)
			default:
			}

			tag := b.nextTag.Add(1)
			b.mu.Lock()
			b.pending[tag] = msg
			b.mu.Unlock()

			handler(ctx, b, NewDelivery(b, tag, msg.exchange, q.name, msg.body, msg.redelivered))
		}
	}
}

// Ack acknowledges the delivery with tag
func (b *MemoryBus) Ack(tag uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[tag]; !ok {
		return ErrUnknownTag
	}
	delete(b.pending, tag)
	return nil
}

// Nack rejects the delivery with tag, redelivering it when requeue is true
func (b *MemoryBus) Nack(tag uint64, requeue bool) error {
	b.mu.Lock()
	msg, ok := b.pending[tag]
	if ok {
		delete(b.pending, tag)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownTag
	}
	if !requeue {
		return nil
	}

	msg.redelivered = true
	return b.enqueue(context.Background(), msg)
}

// Disconnect simulates a connection loss. Active subscriptions return
// ErrConnectionLost and unsettled deliveries are requeued as redelivered.
func (b *MemoryBus) Disconnect() {
	b.mu.Lock()
	close(b.conn)
	b.conn = make(chan struct{})
	pending := b.pending
	b.pending = make(map[uint64]*memoryMessage)
	b.mu.Unlock()

	for _, msg := range pending {
		msg.redelivered = true
		_ = b.enqueue(context.Background(), msg)
	}
}

// Depth returns the number of messages waiting in queue
func (b *MemoryBus) Depth(queue string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if q, ok := b.queues[queue]; ok {
		return len(q.messages)
	}
	return 0
}

// Unacked returns the number of delivered but unsettled messages
func (b *MemoryBus) Unacked() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// Health checks the health of the bus
func (b *MemoryBus) Health() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the bus
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}
