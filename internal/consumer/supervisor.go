package consumer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"shopchat/pkg/bus"
	"shopchat/pkg/log"
)

// Binding one durable queue bound to one exchange
type Binding struct {
	Exchange string
	Queue    string
	Handler  bus.Handler
}

// Supervisor keeps one consumer loop per binding alive. Each loop handles its
// deliveries one at a time and resubscribes after a fixed delay whenever the
// connection is lost, which re-declares the exchange, queue and binding.
type Supervisor struct {
	bus            bus.Bus
	bindings       []Binding
	reconnectDelay time.Duration
	onReconnect    func(queue string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a consumer supervisor
func NewSupervisor(b bus.Bus, reconnectDelay time.Duration, bindings ...Binding) *Supervisor {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Supervisor{
		bus:            b,
		bindings:       bindings,
		reconnectDelay: reconnectDelay,
	}
}

// OnReconnect registers a hook called before every resubscribe attempt
func (s *Supervisor) OnReconnect(fn func(queue string)) {
	s.onReconnect = fn
}

// Start starts one consumer goroutine per binding
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	if len(s.bindings) == 0 {
		return fmt.Errorf("no bindings to consume")
	}
	for _, b := range s.bindings {
		if b.Exchange == "" || b.Queue == "" || b.Handler == nil {
			return fmt.Errorf("incomplete binding %q -> %q", b.Exchange, b.Queue)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, b := range s.bindings {
		s.wg.Add(1)
		go s.run(ctx, b)
	}

	log.WithField("bindings", len(s.bindings)).Info("Consumer supervisor started")
	return nil
}

// Stop cancels every consumer loop and waits for in-flight deliveries to finish
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.Info("Consumer supervisor stopped")
}

func (s *Supervisor) run(ctx context.Context, b Binding) {
	defer s.wg.Done()

	fields := map[string]interface{}{
		"exchange": b.Exchange,
		"queue":    b.Queue,
	}
	handler := guard(b.Handler)

	for {
		err := s.bus.Subscribe(ctx, b.Exchange, b.Queue, handler)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, bus.ErrClosed) {
			log.WithFields(fields).Warn("Bus closed, consumer exiting")
			return
		}

		entry := log.WithFields(fields).WithField("retry_in", s.reconnectDelay.String())
		if err != nil {
			entry = entry.WithField("error", err.Error())
		}
		entry.Warn("Consumer disconnected, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
		if s.onReconnect != nil {
			s.onReconnect(b.Queue)
		}
	}
}

// guard shields in-flight work from shutdown cancellation and contains panics
// and unsettled deliveries by nacking them without requeue.
func guard(h bus.Handler) bus.Handler {
	return func(ctx context.Context, ch bus.Publisher, d *bus.Delivery) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"queue": d.Queue,
					"tag":   d.Tag,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Handler panicked, dropping delivery")
			}
			if !d.Settled() {
				log.WithFields(map[string]interface{}{
					"queue": d.Queue,
					"tag":   d.Tag,
				}).Warn("Delivery left unsettled, nacking without requeue")
				_ = d.Nack(false)
			}
		}()

		h(context.WithoutCancel(ctx), ch, d)
	}
}
