package orchestrator

import (
	"context"

	"shopchat/internal/model"
	"shopchat/pkg/bus"
)

func (o *Orchestrator) handleUserCreated(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	return o.store.UpsertUserIfAbsent(ctx, env.User.ToUser())
}

func (o *Orchestrator) handleUserUpdated(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	return o.store.ApplyUserUpdate(ctx, env.User.ID, env.User.Fields())
}

func (o *Orchestrator) handleProductCreated(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	return o.store.UpsertProductIfAbsent(ctx, env.Product.ToProduct())
}

func (o *Orchestrator) handleProductUpdated(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	return o.store.ApplyProductUpdate(ctx, env.Product.ID, env.Product.Fields())
}

func (o *Orchestrator) handleProductDeleted(ctx context.Context, ch bus.Publisher, env *model.Envelope) error {
	return o.store.ApplyProductDelete(ctx, *env.ProductID)
}
