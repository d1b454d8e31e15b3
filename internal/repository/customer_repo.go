package repository

import (
	"context"

	"gorm.io/gorm"

	"shopchat/internal/model"
)

// CustomerRepository customers known to the orchestrator
type CustomerRepository interface {
	// GetByID returns ErrNotFound when absent
	GetByID(ctx context.Context, id int64) (*model.Customer, error)

	// CreateIfAbsent inserts customer unless its id or (user_id, whatsapp_no) exists
	CreateIfAbsent(ctx context.Context, customer *model.Customer) (created bool, err error)

	// SetWhatsAppNo fills in the channel address of a customer that has none
	SetWhatsAppNo(ctx context.Context, id int64, whatsappNo string) error
}

type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (r *customerRepository) CreateIfAbsent(ctx context.Context, customer *model.Customer) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(onConflictID).Create(customer)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *customerRepository) SetWhatsAppNo(ctx context.Context, id int64, whatsappNo string) error {
	return r.db.WithContext(ctx).
		Model(&model.Customer{}).
		Where("id = ? AND whatsapp_no IS NULL", id).
		Update("whatsapp_no", whatsappNo).Error
}
