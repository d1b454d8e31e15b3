package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// Bus durable fanout publish/subscribe. Every queue bound to an exchange receives
// every message published to it. Queue names are stable so a restarted consumer
// resumes from the same durable queue.
type Bus interface {
	Publisher

	// Declare creates the fanout exchange if it does not exist
	Declare(ctx context.Context, exchange string) error

	// Subscribe declares exchange and queue, binds them and hands deliveries to
	// handler one at a time. It blocks until ctx is done (returning nil) or the
	// connection is lost (returning an error wrapping ErrConnectionLost).
	Subscribe(ctx context.Context, exchange, queue string, handler Handler) error

	// Health checks the health of the connection
	Health() error

	// Close closes the connection
	Close() error
}

// Publisher publishes raw envelopes on an exchange
type Publisher interface {
	Publish(ctx context.Context, exchange string, body []byte) error
}

// Handler processes one delivery. ch publishes on the session the delivery arrived on.
// The handler must settle d with Ack or Nack.
type Handler func(ctx context.Context, ch Publisher, d *Delivery)

// Acknowledger settles deliveries by tag
type Acknowledger interface {
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Delivery one message handed to a subscriber
type Delivery struct {
	Tag         uint64
	Exchange    string
	Queue       string
	Body        []byte
	Redelivered bool

	acker   Acknowledger
	settled atomic.Bool
}

// NewDelivery builds a delivery settled through acker
func NewDelivery(acker Acknowledger, tag uint64, exchange, queue string, body []byte, redelivered bool) *Delivery {
	return &Delivery{
		Tag:         tag,
		Exchange:    exchange,
		Queue:       queue,
		Body:        body,
		Redelivered: redelivered,
		acker:       acker,
	}
}

// Ack acknowledges the delivery. Settling twice returns ErrAlreadySettled.
func (d *Delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.acker.Ack(d.Tag)
}

// Nack rejects the delivery, putting it back on the queue when requeue is true
func (d *Delivery) Nack(requeue bool) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.acker.Nack(d.Tag, requeue)
}

// Settled reports whether Ack or Nack was called
func (d *Delivery) Settled() bool {
	return d.settled.Load()
}

// Common errors
var (
	ErrClosed         = errors.New("bus is closed")
	ErrNotDeclared    = errors.New("exchange not declared")
	ErrConnectionLost = errors.New("bus connection lost")
	ErrPublishTimeout = errors.New("publish timeout")
	ErrUnknownTag     = errors.New("unknown delivery tag")
	ErrAlreadySettled = errors.New("delivery already settled")
)
