package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shopchat/internal/model"
)

// ConversationRepository durable conversation memory
type ConversationRepository interface {
	// Get returns ErrNotFound when the customer has no state row
	Get(ctx context.Context, customerID int64) (*model.ConversationState, error)

	// Set upserts the last product of a customer
	Set(ctx context.Context, customerID int64, productID *int64) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a conversation state repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Get(ctx context.Context, customerID int64) (*model.ConversationState, error) {
	var state model.ConversationState
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&state).Error; err != nil {
		return nil, notFound(err)
	}
	return &state, nil
}

func (r *conversationRepository) Set(ctx context.Context, customerID int64, productID *int64) error {
	state := &model.ConversationState{CustomerID: customerID, LastProductID: productID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_product_id", "updated_at"}),
	}).Create(state).Error
}
