// Package orchestrator consumes the inbound bus events. Replication events are
// applied to the entity store; new_message events run the reply pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopchat/internal/config"
	"shopchat/internal/consumer"
	"shopchat/internal/model"
	"shopchat/internal/monitor"
	"shopchat/internal/replica"
	"shopchat/internal/repository"
	"shopchat/internal/service/responder"
	"shopchat/pkg/bus"
	"shopchat/pkg/lock"
	"shopchat/pkg/log"
)

// ErrInFlight another instance is processing the same message
var ErrInFlight = errors.New("message is being processed elsewhere")

// Replier decides and drafts replies
type Replier interface {
	Decide(ctx context.Context, customerID int64, text string, products []*model.Product) responder.Decision
	Draft(ctx context.Context, d responder.Decision, text string) responder.Reply
}

// Orchestrator routes inbound events to their handlers and settles deliveries
type Orchestrator struct {
	exchanges config.ExchangeNames
	queues    config.QueueNames
	dlx       string

	store    *replica.Store
	products repository.ProductRepository
	messages repository.MessageRepository
	replier  Replier
	pub      bus.Publisher

	locker  lock.Locker
	metrics *monitor.MetricsCollector
	tracer  *monitor.Tracer

	registry *registry
}

// Option configures optional collaborators
type Option func(*Orchestrator)

// WithLocker serializes processing of a message id across instances
func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithMetrics records pipeline metrics
func WithMetrics(m *monitor.MetricsCollector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer records a span per delivery and per stage
func WithTracer(t *monitor.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator. pub is used for publishes made outside a
// delivery, such as a resync. It validates the dispatch registry.
func New(
	cfg config.BusConfig,
	store *replica.Store,
	products repository.ProductRepository,
	messages repository.MessageRepository,
	replier Replier,
	pub bus.Publisher,
	opts ...Option,
) (*Orchestrator, error) {
	o := &Orchestrator{
		exchanges: cfg.Exchanges,
		queues:    cfg.Queues,
		dlx:       cfg.DeadLetterExchange,
		store:     store,
		products:  products,
		messages:  messages,
		replier:   replier,
		pub:       pub,
		tracer:    &monitor.Tracer{},
		registry:  newRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.registry.register(model.EventNewMessage, o.handleNewMessage)
	o.registry.register(model.EventResponseDelivered, o.handleResponseDelivered)
	o.registry.register(model.EventUserCreated, o.handleUserCreated)
	o.registry.register(model.EventUserUpdated, o.handleUserUpdated)
	o.registry.register(model.EventProductCreated, o.handleProductCreated)
	o.registry.register(model.EventProductUpdated, o.handleProductUpdated)
	o.registry.register(model.EventProductDeleted, o.handleProductDeleted)

	if err := o.registry.validate(model.InboundEvents); err != nil {
		return nil, fmt.Errorf("invalid dispatch registry: %w", err)
	}
	return o, nil
}

// Bindings returns the durable queue bindings the orchestrator consumes
func (o *Orchestrator) Bindings() []consumer.Binding {
	return []consumer.Binding{
		{Exchange: o.exchanges.Users, Queue: o.queues.Users, Handler: o.HandleDelivery},
		{Exchange: o.exchanges.Products, Queue: o.queues.Products, Handler: o.HandleDelivery},
		{Exchange: o.exchanges.Messages, Queue: o.queues.Messages, Handler: o.HandleDelivery},
	}
}

// OutboundExchanges returns the exchanges the orchestrator publishes on
func (o *Orchestrator) OutboundExchanges() []string {
	out := []string{o.exchanges.Responses}
	if o.dlx != "" {
		out = append(out, o.dlx)
	}
	return out
}

// HandleDelivery decodes d, dispatches it by event type and settles it.
// Undecodable, invalid and unknown events are acked and dropped since a
// redelivery cannot succeed either.
func (o *Orchestrator) HandleDelivery(ctx context.Context, ch bus.Publisher, d *bus.Delivery) {
	start := time.Now()
	fields := map[string]interface{}{
		"queue":       d.Queue,
		"tag":         d.Tag,
		"redelivered": d.Redelivered,
	}

	var env model.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to decode event, dropping")
		o.settle(d, "", monitor.OutcomeDrop, start)
		return
	}
	eventType := string(env.EventType)
	fields["event_type"] = eventType

	ctx, span := o.tracer.StartConsumeSpan(ctx, d.Queue, eventType)
	defer span.End()

	handler, ok := o.registry.lookup(env.EventType)
	if !ok {
		log.WithFields(fields).Warn("Unknown event type, dropping")
		o.settle(d, eventType, monitor.OutcomeDrop, start)
		return
	}
	if err := env.Validate(); err != nil {
		log.WithFields(fields).WithError(err).Error("Invalid event payload, dropping")
		o.settle(d, eventType, monitor.OutcomeDrop, start)
		return
	}

	err := handler(ctx, ch, &env)
	switch {
	case err == nil:
		o.settle(d, eventType, monitor.OutcomeAck, start)
		if env.EventType == model.EventNewMessage {
			log.WithFields(fields).WithFields(map[string]interface{}{
				"message_id": env.MessageData.ID,
				"state":      string(StateAcked),
				"elapsed":    time.Since(start).String(),
			}).Info("Pipeline transition")
		}
	case errors.Is(err, ErrInFlight):
		log.WithFields(fields).Info("Message locked by another instance, requeueing")
		o.settle(d, eventType, monitor.OutcomeRequeue, start)
	default:
		o.tracer.RecordError(span, err)
		log.WithFields(fields).WithError(err).Error("Event handling failed, rejecting")
		o.deadLetter(ctx, ch, d)
		o.settle(d, eventType, monitor.OutcomeNack, start)
	}
}

func (o *Orchestrator) settle(d *bus.Delivery, eventType, outcome string, start time.Time) {
	var err error
	switch outcome {
	case monitor.OutcomeAck, monitor.OutcomeDrop:
		err = d.Ack()
	case monitor.OutcomeRequeue:
		err = d.Nack(true)
	default:
		err = d.Nack(false)
	}
	if err != nil {
		log.WithFields(map[string]interface{}{
			"queue":   d.Queue,
			"tag":     d.Tag,
			"outcome": outcome,
			"error":   err.Error(),
		}).Warn("Failed to settle delivery")
	}

	if o.metrics != nil {
		o.metrics.RecordEvent(d.Queue, eventType, outcome)
		if eventType == string(model.EventNewMessage) {
			o.metrics.RecordPipeline(outcome, time.Since(start))
		}
	}
}

// deadLetter copies a failed delivery to the dead-letter exchange when one is configured
func (o *Orchestrator) deadLetter(ctx context.Context, ch bus.Publisher, d *bus.Delivery) {
	if o.dlx == "" {
		return
	}
	if err := ch.Publish(ctx, o.dlx, d.Body); err != nil {
		log.WithFields(map[string]interface{}{
			"queue":    d.Queue,
			"exchange": o.dlx,
			"error":    err.Error(),
		}).Error("Failed to dead-letter delivery")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordDeadLetter()
	}
}

func (o *Orchestrator) publishResponse(ctx context.Context, ch bus.Publisher, messageID int64, text, source string) error {
	ctx, span := o.tracer.StartPublishSpan(ctx, o.exchanges.Responses)
	defer span.End()

	body, err := json.Marshal(model.NewAIResponseReady(messageID, text))
	if err != nil {
		return fmt.Errorf("failed to encode ai_response_ready: %w", err)
	}
	if err := ch.Publish(ctx, o.exchanges.Responses, body); err != nil {
		o.tracer.RecordError(span, err)
		return fmt.Errorf("failed to publish ai_response_ready for message %d: %w", messageID, err)
	}
	if o.metrics != nil {
		o.metrics.RecordPublished(source)
	}
	return nil
}
