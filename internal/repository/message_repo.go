package repository

import (
	"context"

	"gorm.io/gorm"

	"shopchat/internal/model"
)

// MessageRepository inbound messages and their replies
type MessageRepository interface {
	// GetByID returns ErrNotFound when absent
	GetByID(ctx context.Context, id int64) (*model.Message, error)

	// CreateIfAbsent inserts message unless its id exists
	CreateIfAbsent(ctx context.Context, message *model.Message) (created bool, err error)

	// SaveResponse stores the reply text and sets the generated flag
	SaveResponse(ctx context.Context, id int64, response string) error

	// MarkDelivered sets the delivered flag. It returns ErrNotFound for an unknown id.
	MarkDelivered(ctx context.Context, id int64) error

	// ListByCustomer returns the newest messages of a customer first
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*model.Message, error)

	// ListUndelivered returns generated but undelivered messages for customers of userID
	ListUndelivered(ctx context.Context, userID int64, limit int) ([]*model.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

func (r *messageRepository) CreateIfAbsent(ctx context.Context, message *model.Message) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(onConflictID).Create(message)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) SaveResponse(ctx context.Context, id int64, response string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"response_message":      response,
			"is_response_generated": true,
		})
	return result.Error
}

func (r *messageRepository) MarkDelivered(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Update("is_send_response", true)
	if result.Error != nil {
		return result.Error
	}
	// updated_at always changes, so an existing row is always counted
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *messageRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) ListUndelivered(ctx context.Context, userID int64, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Joins("JOIN customers ON customers.id = messages.customer_id").
		Where("customers.user_id = ? AND messages.is_response_generated = ? AND messages.is_send_response = ?", userID, true, false).
		Order("messages.id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
