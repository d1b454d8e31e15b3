// Package replica keeps the local copies of users, products and customers in
// sync with the services that own them. Every operation is idempotent so a
// redelivered or reordered event converges on the same state.
package replica

import (
	"context"
	"errors"
	"fmt"

	"shopchat/internal/model"
	"shopchat/internal/repository"
	"shopchat/pkg/log"
	"shopchat/pkg/utils"
)

// Evictor drops cached conversation memory of a customer
type Evictor interface {
	Evict(ctx context.Context, customerID int64)
}

// Store upsert contracts for replicated entities
type Store struct {
	users     repository.UserRepository
	products  repository.ProductRepository
	customers repository.CustomerRepository
	evictor   Evictor
}

// StoreOption configures optional collaborators
type StoreOption func(*Store)

// WithEvictor evicts cached memories of a deleted product
func WithEvictor(e Evictor) StoreOption {
	return func(s *Store) { s.evictor = e }
}

// NewStore creates an entity store
func NewStore(
	users repository.UserRepository,
	products repository.ProductRepository,
	customers repository.CustomerRepository,
	opts ...StoreOption,
) *Store {
	s := &Store{
		users:     users,
		products:  products,
		customers: customers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertUserIfAbsent inserts user unless its id exists. A placeholder row with
// the same id is reconciled with the event's name and email.
func (s *Store) UpsertUserIfAbsent(ctx context.Context, user *model.User) error {
	created, err := s.users.CreateIfAbsent(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user %d: %w", user.ID, err)
	}
	if created {
		log.WithField("user_id", user.ID).Info("Replicated user")
		return nil
	}

	existing, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", user.ID, err)
	}
	if !existing.Placeholder {
		log.WithField("user_id", user.ID).Debug("User already replicated, skipping create")
		return nil
	}

	fields := map[string]interface{}{"placeholder": false}
	if user.Name != "" && user.Name != model.PlaceholderUserName {
		fields["name"] = user.Name
	}
	if user.Email != nil {
		fields["email"] = *user.Email
	}
	if err := s.users.UpdateFields(ctx, user.ID, fields); err != nil {
		return fmt.Errorf("failed to reconcile placeholder user %d: %w", user.ID, err)
	}
	log.WithField("user_id", user.ID).Info("Reconciled placeholder user")
	return nil
}

// ApplyUserUpdate updates the present fields of an existing user. Absent users are left alone.
func (s *Store) ApplyUserUpdate(ctx context.Context, id int64, fields map[string]interface{}) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.WithField("user_id", id).Debug("User not replicated, skipping update")
			return nil
		}
		return fmt.Errorf("failed to load user %d: %w", id, err)
	}
	if err := s.users.UpdateFields(ctx, id, fields); err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return nil
}

// UpsertProductIfAbsent inserts product unless its id exists, creating a
// placeholder owner when the owner has not been replicated yet.
func (s *Store) UpsertProductIfAbsent(ctx context.Context, product *model.Product) error {
	if err := s.ensureOwner(ctx, product.OwnerID); err != nil {
		return err
	}
	created, err := s.products.CreateIfAbsent(ctx, product)
	if err != nil {
		return fmt.Errorf("failed to create product %d: %w", product.ID, err)
	}
	entry := log.WithFields(map[string]interface{}{
		"product_id": product.ID,
		"owner_id":   product.OwnerID,
	})
	if created {
		entry.Info("Replicated product")
	} else {
		entry.Debug("Product already replicated, skipping create")
	}
	return nil
}

// ApplyProductUpdate updates the present fields of an existing product. Absent products are left alone.
func (s *Store) ApplyProductUpdate(ctx context.Context, id int64, fields map[string]interface{}) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.WithField("product_id", id).Debug("Product not replicated, skipping update")
			return nil
		}
		return fmt.Errorf("failed to load product %d: %w", id, err)
	}
	if owner, ok := fields["owner_id"].(int64); ok {
		if err := s.ensureOwner(ctx, owner); err != nil {
			return err
		}
	}
	if err := s.products.UpdateFields(ctx, id, fields); err != nil {
		return fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return nil
}

// ApplyProductDelete removes an existing product. Absent products are left alone.
func (s *Store) ApplyProductDelete(ctx context.Context, id int64) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.WithField("product_id", id).Debug("Product not replicated, skipping delete")
			return nil
		}
		return fmt.Errorf("failed to load product %d: %w", id, err)
	}
	cleared, err := s.products.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	if s.evictor != nil {
		for _, customerID := range cleared {
			s.evictor.Evict(ctx, customerID)
		}
	}
	log.WithFields(map[string]interface{}{
		"product_id":        id,
		"cleared_customers": len(cleared),
	}).Info("Deleted replicated product")
	return nil
}

// EnsureCustomer returns the customer with the externally supplied id, creating
// it for userID when absent. An existing row is never re-keyed; a missing
// channel address is filled in from whatsappNo.
func (s *Store) EnsureCustomer(ctx context.Context, id, userID int64, whatsappNo string) (*model.Customer, error) {
	customer, err := s.customers.GetByID(ctx, id)
	if err == nil {
		if customer.WhatsAppNo == nil && whatsappNo != "" {
			if err := s.customers.SetWhatsAppNo(ctx, id, whatsappNo); err != nil {
				return nil, fmt.Errorf("failed to enrich customer %d: %w", id, err)
			}
			customer.WhatsAppNo = &whatsappNo
			log.WithFields(map[string]interface{}{
				"customer_id": id,
				"whatsapp_no": utils.MaskPhone(whatsappNo),
			}).Info("Filled missing customer channel address")
		}
		return customer, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}

	if err := s.ensureOwner(ctx, userID); err != nil {
		return nil, err
	}
	customer = &model.Customer{ID: id, UserID: userID}
	if whatsappNo != "" {
		customer.WhatsAppNo = &whatsappNo
	}
	created, err := s.customers.CreateIfAbsent(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer %d: %w", id, err)
	}
	if created {
		log.WithFields(map[string]interface{}{
			"customer_id": id,
			"user_id":     userID,
			"whatsapp_no": utils.MaskPhone(whatsappNo),
		}).Info("Created customer")
		return customer, nil
	}

	// lost a race with another writer, or (user_id, whatsapp_no) belongs to a different id
	existing, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("customer %d conflicts with an existing channel address: %w", id, err)
	}
	return existing, nil
}

func (s *Store) ensureOwner(ctx context.Context, ownerID int64) error {
	created, err := s.users.CreateIfAbsent(ctx, model.NewPlaceholderUser(ownerID))
	if err != nil {
		return fmt.Errorf("failed to ensure owner %d: %w", ownerID, err)
	}
	if created {
		log.WithField("user_id", ownerID).Warn("Owner not replicated yet, created placeholder")
	}
	return nil
}
