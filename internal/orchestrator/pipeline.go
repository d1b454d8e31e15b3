package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shopchat/internal/model"
	"shopchat/internal/repository"
	"shopchat/internal/service/responder"
	"shopchat/pkg/bus"
	"shopchat/pkg/lock"
	"shopchat/pkg/log"
)

// State stage of the new_message pipeline
type State string

const (
	StateReceived  State = "received"
	StateScoped    State = "scoped"
	StateMatched   State = "matched"
	StateDrafted   State = "drafted"
	StatePersisted State = "persisted"
	StatePublished State = "published"
	StateAcked     State = "acked"
	StateFailed    State = "failed"
)

// Publish sources
const (
	sourceGenerated  = "generated"
	sourceRedelivery = "redelivery"
	sourceResync     = "resync"
)

type run struct {
	o      *Orchestrator
	data   *model.NewMessageData
	fields map[string]interface{}
}

func (r *run) enter(state State, extra map[string]interface{}) {
	entry := log.WithFields(r.fields).WithField("state", string(state))
	if extra != nil {
		entry = entry.WithFields(extra)
	}
	entry.Info("Pipeline transition")
}

// stage runs fn inside a span and records its duration
func (r *run) stage(ctx context.Context, state State, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := r.o.tracer.StartStageSpan(ctx, string(state),
		attribute.Int64("message.id", r.data.ID),
		attribute.Int64("customer.id", r.data.CustomerID),
		attribute.Int64("user.id", r.data.UserID),
	)
	defer span.End()

	err := fn(ctx)
	if r.o.metrics != nil {
		r.o.metrics.RecordStage(string(state), time.Since(start))
	}
	if err != nil {
		r.o.tracer.RecordError(span, err)
		return err
	}
	return nil
}

// handleNewMessage runs Received → Scoped → Matched → Drafted → Persisted →
// Published. The caller acks on a nil return.
func (o *Orchestrator) handleNewMessage(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	data := env.MessageData
	r := &run{
		o:    o,
		data: data,
		fields: map[string]interface{}{
			"message_id":  data.ID,
			"customer_id": data.CustomerID,
			"user_id":     data.UserID,
		},
	}
	r.enter(StateReceived, nil)

	if o.locker != nil {
		l, err := o.locker.Acquire(ctx, strconv.FormatInt(data.ID, 10))
		switch {
		case errors.Is(err, lock.ErrLockHeld):
			return fmt.Errorf("message %d: %w", data.ID, ErrInFlight)
		case err != nil:
			log.WithFields(r.fields).WithError(err).Warn("Processing lock unavailable, continuing unlocked")
		default:
			defer func() {
				if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
					log.WithFields(r.fields).WithError(err).Warn("Failed to release processing lock")
				}
			}()
		}
	}

	err := r.process(ctx, ch)
	if err != nil {
		r.enter(StateFailed, map[string]interface{}{"error": err.Error()})
	}
	return err
}

func (r *run) process(ctx context.Context, ch bus.Publisher) error {
	o, data := r.o, r.data

	var stored *model.Message
	err := r.stage(ctx, StateScoped, func(ctx context.Context) error {
		if _, err := o.store.EnsureCustomer(ctx, data.CustomerID, data.UserID, data.WhatsAppNo); err != nil {
			return err
		}
		created, err := o.messages.CreateIfAbsent(ctx, &model.Message{
			ID:          data.ID,
			CustomerID:  data.CustomerID,
			UserMessage: data.UserMessage,
		})
		if err != nil {
			return fmt.Errorf("failed to store message %d: %w", data.ID, err)
		}
		if created {
			return nil
		}
		stored, err = o.messages.GetByID(ctx, data.ID)
		if err != nil {
			return fmt.Errorf("failed to load message %d: %w", data.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if stored != nil {
		if stored.CustomerID != data.CustomerID {
			log.WithFields(r.fields).WithField("stored_customer_id", stored.CustomerID).
				Warn("Redelivered message id belongs to another customer")
		}
		if stored.HasResponse() {
			r.enter(StateScoped, map[string]interface{}{"redelivery": true})
			err := r.stage(ctx, StatePublished, func(ctx context.Context) error {
				return o.publishResponse(ctx, ch, data.ID, *stored.ResponseMessage, sourceRedelivery)
			})
			if err != nil {
				return err
			}
			r.enter(StatePublished, map[string]interface{}{"redelivery": true})
			return nil
		}
	}
	r.enter(StateScoped, nil)

	var (
		products []*model.Product
		decision responder.Decision
	)
	err = r.stage(ctx, StateMatched, func(ctx context.Context) error {
		var err error
		// scoped by the event's user id, never by the stored customer's owner
		products, err = o.products.ListByOwner(ctx, data.UserID)
		if err != nil {
			return fmt.Errorf("failed to list products of user %d: %w", data.UserID, err)
		}
		decision = o.replier.Decide(ctx, data.CustomerID, data.UserMessage, products)
		return nil
	})
	if err != nil {
		return err
	}
	matched := map[string]interface{}{
		"branch":      string(decision.Branch),
		"from_memory": decision.FromMemory,
		"products":    len(products),
	}
	if decision.Product != nil {
		matched["product_id"] = decision.Product.ID
		matched["score"] = decision.Score
	}
	r.enter(StateMatched, matched)
	if o.metrics != nil {
		o.metrics.RecordBranch(string(decision.Branch), decision.FromMemory)
	}

	var reply responder.Reply
	err = r.stage(ctx, StateDrafted, func(ctx context.Context) error {
		// provider failures come back as sentinel text; only a cancelled delivery fails here
		reply = o.replier.Draft(ctx, decision, data.UserMessage)
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	r.enter(StateDrafted, map[string]interface{}{
		"provider": reply.Result.Provider,
		"fallback": reply.Result.Fallback,
	})
	if reply.Result.Fallback && o.metrics != nil {
		o.metrics.RecordFallback()
	}

	err = r.stage(ctx, StatePersisted, func(ctx context.Context) error {
		if err := o.messages.SaveResponse(ctx, data.ID, reply.Result.Text); err != nil {
			return fmt.Errorf("failed to save response for message %d: %w", data.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.enter(StatePersisted, nil)

	err = r.stage(ctx, StatePublished, func(ctx context.Context) error {
		return o.publishResponse(ctx, ch, data.ID, reply.Result.Text, sourceGenerated)
	})
	if err != nil {
		return err
	}
	r.enter(StatePublished, nil)
	return nil
}

// handleResponseDelivered marks the message's reply as sent to the customer
func (o *Orchestrator) handleResponseDelivered(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	id := *env.MessageID
	if err := o.messages.MarkDelivered(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.WithField("message_id", id).Warn("Delivery receipt for unknown message")
			return nil
		}
		return fmt.Errorf("failed to mark message %d delivered: %w", id, err)
	}
	log.WithField("message_id", id).Info("Response delivered")
	return nil
}
