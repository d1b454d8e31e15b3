package repository

import (
	"context"

	"gorm.io/gorm"

	"shopchat/internal/model"
)

// ProductRepository replicated products
type ProductRepository interface {
	// GetByID returns ErrNotFound when absent
	GetByID(ctx context.Context, id int64) (*model.Product, error)

	// CreateIfAbsent inserts product unless its id exists
	CreateIfAbsent(ctx context.Context, product *model.Product) (created bool, err error)

	// UpdateFields applies column updates to an existing product
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// Delete removes the product and clears conversation memories pointing at
	// it. It returns the customers whose memory was cleared.
	Delete(ctx context.Context, id int64) (customerIDs []int64, err error)

	// ListByOwner returns every product of owner in catalog (id) order
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *productRepository) CreateIfAbsent(ctx context.Context, product *model.Product) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(onConflictID).Create(product)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *productRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *productRepository) Delete(ctx context.Context, id int64) ([]int64, error) {
	var customerIDs []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.ConversationState{}).
			Where("last_product_id = ?", id).
			Pluck("customer_id", &customerIDs).Error; err != nil {
			return err
		}
		if len(customerIDs) > 0 {
			if err := tx.Model(&model.ConversationState{}).
				Where("last_product_id = ?", id).
				Update("last_product_id", nil).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&model.Product{}).Error
	})
	if err != nil {
		return nil, err
	}
	return customerIDs, nil
}

func (r *productRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&products).Error
	return products, err
}
