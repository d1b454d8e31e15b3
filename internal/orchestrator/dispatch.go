package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"shopchat/internal/model"
	"shopchat/pkg/bus"
)

// EventHandler processes one decoded, validated envelope. A nil return acks
// the delivery; ErrInFlight requeues it; any other error rejects it.
type EventHandler func(ctx context.Context, ch bus.Publisher, env *model.Envelope) error

// registry maps each event kind to its handler
type registry struct {
	handlers map[model.EventType]EventHandler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[model.EventType]EventHandler)}
}

func (r *registry) register(eventType model.EventType, h EventHandler) {
	r.handlers[eventType] = h
}

func (r *registry) lookup(eventType model.EventType) (EventHandler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

// validate checks that every inbound event kind has a handler and that no
// handler is registered for a kind the orchestrator does not consume.
func (r *registry) validate(inbound []model.EventType) error {
	want := make(map[model.EventType]bool, len(inbound))
	var missing []string
	for _, e := range inbound {
		want[e] = true
		if _, ok := r.handlers[e]; !ok {
			missing = append(missing, string(e))
		}
	}

	var extra []string
	for e := range r.handlers {
		if !want[e] {
			extra = append(extra, string(e))
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no handler registered for: %s", strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("handler registered for unknown event: %s", strings.Join(extra, ", "))
	}
	return nil
}
