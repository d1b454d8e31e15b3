// Package repotest provides in-memory repositories for tests of code built on
// the repository interfaces.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopchat/internal/model"
	"shopchat/internal/repository"
)

// Store holds every entity table in memory. Its accessors return repositories
// sharing the same state, so a product delete is visible to conversation state.
type Store struct {
	mu            sync.Mutex
	users         map[int64]model.User
	products      map[int64]model.Product
	customers     map[int64]model.Customer
	messages      map[int64]model.Message
	conversations map[int64]model.ConversationState

	// Err, when set, is returned by every write
	Err error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:         make(map[int64]model.User),
		products:      make(map[int64]model.Product),
		customers:     make(map[int64]model.Customer),
		messages:      make(map[int64]model.Message),
		conversations: make(map[int64]model.ConversationState),
	}
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Products() repository.ProductRepository           { return productRepo{s} }
func (s *Store) Customers() repository.CustomerRepository         { return customerRepo{s} }
func (s *Store) Messages() repository.MessageRepository           { return messageRepo{s} }
func (s *Store) Conversations() repository.ConversationRepository { return conversationRepo{s} }

// UserCount returns the number of stored users
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// ProductCount returns the number of stored products
func (s *Store) ProductCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// CustomerCount returns the number of stored customers
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

// MessageCount returns the number of stored messages
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func setFields(dst map[string]interface{}, apply map[string]func(interface{})) {
	for k, v := range dst {
		if fn, ok := apply[k]; ok {
			fn(v)
		}
	}
}

func strField(v interface{}) *string {
	switch t := v.(type) {
	case string:
		return &t
	case *string:
		return t
	}
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return false, r.s.Err
	}
	if _, ok := r.s.users[user.ID]; ok {
		return false, nil
	}
	u := *user
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	r.s.users[user.ID] = u
	return true, nil
}

func (r userRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil
	}
	setFields(fields, map[string]func(interface{}){
		"name":        func(v interface{}) { u.Name = v.(string) },
		"email":       func(v interface{}) { u.Email = strField(v) },
		"placeholder": func(v interface{}) { u.Placeholder = v.(bool) },
	})
	u.UpdatedAt = time.Now()
	r.s.users[id] = u
	return nil
}

type productRepo struct{ s *Store }

func (r productRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r productRepo) CreateIfAbsent(ctx context.Context, product *model.Product) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return false, r.s.Err
	}
	if _, ok := r.s.products[product.ID]; ok {
		return false, nil
	}
	p := *product
	p.CreatedAt, p.UpdatedAt = time.Time{}, time.Time{}
	r.s.products[product.ID] = p
	return true, nil
}

func (r productRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	p, ok := r.s.products[id]
	if !ok {
		return nil
	}
	setFields(fields, map[string]func(interface{}){
		"name":          func(v interface{}) { p.Name = v.(string) },
		"sku":           func(v interface{}) { p.SKU = strField(v) },
		"price":         func(v interface{}) { f := v.(float64); p.Price = &f },
		"description":   func(v interface{}) { p.Description = strField(v) },
		"image":         func(v interface{}) { p.Image = strField(v) },
		"available_qty": func(v interface{}) { n := v.(int); p.AvailableQty = &n },
		"stock_qty":     func(v interface{}) { n := v.(int); p.StockQty = &n },
		"owner_id":      func(v interface{}) { p.OwnerID = v.(int64) },
	})
	r.s.products[id] = p
	return nil
}

func (r productRepo) Delete(ctx context.Context, id int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var cleared []int64
	for cid, state := range r.s.conversations {
		if state.LastProductID != nil && *state.LastProductID == id {
			state.LastProductID = nil
			r.s.conversations[cid] = state
			cleared = append(cleared, cid)
		}
	}
	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	delete(r.s.products, id)
	return cleared, nil
}

func (r productRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var products []*model.Product
	for _, p := range r.s.products {
		if p.OwnerID == ownerID {
			p := p
			products = append(products, &p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

type customerRepo struct{ s *Store }

func (r customerRepo) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r customerRepo) CreateIfAbsent(ctx context.Context, customer *model.Customer) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return false, r.s.Err
	}
	if _, ok := r.s.customers[customer.ID]; ok {
		return false, nil
	}
	if customer.WhatsAppNo != nil {
		for _, c := range r.s.customers {
			if c.UserID == customer.UserID && c.WhatsAppNo != nil && *c.WhatsAppNo == *customer.WhatsAppNo {
				return false, nil
			}
		}
	}
	r.s.customers[customer.ID] = *customer
	return true, nil
}

func (r customerRepo) SetWhatsAppNo(ctx context.Context, id int64, whatsappNo string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	c, ok := r.s.customers[id]
	if !ok || c.WhatsAppNo != nil {
		return nil
	}
	c.WhatsAppNo = &whatsappNo
	r.s.customers[id] = c
	return nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r messageRepo) CreateIfAbsent(ctx context.Context, message *model.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return false, r.s.Err
	}
	if _, ok := r.s.messages[message.ID]; ok {
		return false, nil
	}
	m := *message
	m.CreatedAt = time.Now()
	r.s.messages[message.ID] = m
	return true, nil
}

func (r messageRepo) SaveResponse(ctx context.Context, id int64, response string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	m, ok := r.s.messages[id]
	if !ok {
		return nil
	}
	m.ResponseMessage = &response
	m.IsResponseGenerated = true
	r.s.messages[id] = m
	return nil
}

func (r messageRepo) MarkDelivered(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	m, ok := r.s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsSendResponse = true
	r.s.messages[id] = m
	return nil
}

func (r messageRepo) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var messages []*model.Message
	for _, m := range r.s.messages {
		if m.CustomerID == customerID {
			m := m
			messages = append(messages, &m)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID > messages[j].ID })
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r messageRepo) ListUndelivered(ctx context.Context, userID int64, limit int) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var messages []*model.Message
	for _, m := range r.s.messages {
		c, ok := r.s.customers[m.CustomerID]
		if !ok || c.UserID != userID || !m.IsResponseGenerated || m.IsSendResponse {
			continue
		}
		m := m
		messages = append(messages, &m)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

type conversationRepo struct{ s *Store }

func (r conversationRepo) Get(ctx context.Context, customerID int64) (*model.ConversationState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	state, ok := r.s.conversations[customerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &state, nil
}

func (r conversationRepo) Set(ctx context.Context, customerID int64, productID *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	r.s.conversations[customerID] = model.ConversationState{
		CustomerID:    customerID,
		LastProductID: productID,
		UpdatedAt:     time.Now(),
	}
	return nil
}
