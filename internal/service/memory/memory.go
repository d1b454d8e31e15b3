// Package memory remembers the last product each customer's conversation was
// about, in a fast cache written through to the conversation_state table.
package memory

import (
	"context"
	"errors"

	"shopchat/internal/repository"
	"shopchat/pkg/log"
)

// Memory conversation memory
type Memory struct {
	cache Cache
	store repository.ConversationRepository
}

// New creates a conversation memory over cache and the durable store
func New(cache Cache, store repository.ConversationRepository) *Memory {
	return &Memory{cache: cache, store: store}
}

// IsFollowUp reports whether text refers back to an earlier product
func (m *Memory) IsFollowUp(text string) bool {
	return IsFollowUp(text)
}

// GetLastProduct returns the customer's last product, reading through to the
// durable store on a cache miss. Lookup failures read as a miss.
func (m *Memory) GetLastProduct(ctx context.Context, customerID int64) (int64, bool) {
	productID, ok, err := m.cache.Get(ctx, customerID)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		}).Warn("Conversation cache read failed")
	}
	if ok {
		return productID, true
	}

	state, err := m.store.Get(ctx, customerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.WithFields(map[string]interface{}{
				"customer_id": customerID,
				"error":       err.Error(),
			}).Warn("Conversation state read failed")
		}
		return 0, false
	}
	if state.LastProductID == nil {
		return 0, false
	}

	if err := m.cache.Set(ctx, customerID, *state.LastProductID); err != nil {
		log.WithField("customer_id", customerID).WithError(err).Warn("Conversation cache populate failed")
	}
	return *state.LastProductID, true
}

// SetLastProduct records productID for the customer in the cache and the
// durable store. A durable failure leaves a cache-only memory.
func (m *Memory) SetLastProduct(ctx context.Context, customerID, productID int64) {
	if err := m.cache.Set(ctx, customerID, productID); err != nil {
		log.WithField("customer_id", customerID).WithError(err).Warn("Conversation cache write failed")
	}
	if err := m.store.Set(ctx, customerID, &productID); err != nil {
		log.WithFields(map[string]interface{}{
			"customer_id": customerID,
			"product_id":  productID,
			"error":       err.Error(),
		}).Warn("Conversation state write failed, keeping cache-only memory")
	}
}

// Evict drops the cached product of a customer. The durable row is left as is.
func (m *Memory) Evict(ctx context.Context, customerID int64) {
	if err := m.cache.Delete(ctx, customerID); err != nil {
		log.WithField("customer_id", customerID).WithError(err).Warn("Conversation cache delete failed")
	}
}
