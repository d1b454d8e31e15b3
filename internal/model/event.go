package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventType event_type discriminator carried by every envelope
type EventType string

const (
	EventNewMessage        EventType = "new_message"
	EventResponseDelivered EventType = "response_delivered"
	EventUserCreated       EventType = "user_created"
	EventUserUpdated       EventType = "user_updated"
	EventProductCreated    EventType = "product_created"
	EventProductUpdated    EventType = "product_updated"
	EventProductDeleted    EventType = "product_deleted"
	EventAIResponseReady   EventType = "ai_response_ready"
)

// InboundEvents every event kind the orchestrator consumes. Each one needs a registered handler.
var InboundEvents = []EventType{
	EventNewMessage,
	EventResponseDelivered,
	EventUserCreated,
	EventUserUpdated,
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
}

// ErrInvalidPayload envelope decoded but its payload is missing or incomplete
var ErrInvalidPayload = errors.New("invalid event payload")

var validate = validator.New()

// Envelope wire shape of every bus event. Only the payload matching EventType is set.
type Envelope struct {
	EventType   EventType       `json:"event_type"`
	MessageData *NewMessageData `json:"message_data,omitempty"`
	User        *UserPayload    `json:"user,omitempty"`
	Product     *ProductPayload `json:"product,omitempty"`
	ProductID   *int64          `json:"product_id,omitempty"`
	MessageID   *int64          `json:"message_id,omitempty"`
	AIResponse  *string         `json:"ai_response,omitempty"`
}

// NewMessageData inbound customer message normalized by the WhatsApp connector
type NewMessageData struct {
	ID          int64  `json:"id" validate:"required"`          // Message ID (idempotency key)
	CustomerID  int64  `json:"customer_id" validate:"required"` // Customer ID (idempotency key)
	UserID      int64  `json:"user_id" validate:"required"`     // Owning business
	WhatsAppNo  string `json:"whatsapp_no" validate:"required"` // Customer channel address
	UserMessage string `json:"user_message" validate:"required"`
}

// UserPayload user_created / user_updated body
type UserPayload struct {
	ID       int64   `json:"id" validate:"required"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// ProductPayload product_created / product_updated body. Nil fields are absent.
type ProductPayload struct {
	ID           int64    `json:"id" validate:"required"`
	Name         *string  `json:"name,omitempty"`
	SKU          *string  `json:"sku,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Image        *string  `json:"image,omitempty"`
	AvailableQty *int     `json:"available_qty,omitempty"`
	StockQty     *int     `json:"stock_qty,omitempty"`
	OwnerID      *int64   `json:"owner_id,omitempty"`
	UserID       *int64   `json:"user_id,omitempty"` // older stock-service builds send the owner as user_id
}

// Owner returns the owning user id from either owner_id or user_id
func (p *ProductPayload) Owner() (int64, bool) {
	if p.OwnerID != nil {
		return *p.OwnerID, true
	}
	if p.UserID != nil {
		return *p.UserID, true
	}
	return 0, false
}

// ToProduct builds a full record for insertion
func (p *ProductPayload) ToProduct() *Product {
	owner, _ := p.Owner()
	product := &Product{
		ID:           p.ID,
		Price:        p.Price,
		Description:  p.Description,
		Image:        p.Image,
		AvailableQty: p.AvailableQty,
		StockQty:     p.StockQty,
		OwnerID:      owner,
	}
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.SKU != nil && *p.SKU != "" {
		product.SKU = p.SKU
	}
	return product
}

// Fields returns the column updates for the fields present in the payload
func (p *ProductPayload) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.SKU != nil {
		if *p.SKU == "" {
			fields["sku"] = nil
		} else {
			fields["sku"] = *p.SKU
		}
	}
	if p.Price != nil {
		fields["price"] = *p.Price
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Image != nil {
		fields["image"] = *p.Image
	}
	if p.AvailableQty != nil {
		fields["available_qty"] = *p.AvailableQty
	}
	if p.StockQty != nil {
		fields["stock_qty"] = *p.StockQty
	}
	if owner, ok := p.Owner(); ok {
		fields["owner_id"] = owner
	}
	return fields
}

// ToUser builds a full record for insertion
func (u *UserPayload) ToUser() *User {
	user := &User{ID: u.ID, Name: PlaceholderUserName, Email: u.Email}
	if u.Username != nil {
		user.Name = *u.Username
	}
	return user
}

// Fields returns the column updates for the fields present in the payload
func (u *UserPayload) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.Username != nil {
		fields["name"] = *u.Username
	}
	if u.Email != nil {
		fields["email"] = *u.Email
	}
	return fields
}

// AIResponseReadyEvent outbound event consumed by the WhatsApp connector
type AIResponseReadyEvent struct {
	EventType  EventType `json:"event_type"`
	MessageID  int64     `json:"message_id"`
	AIResponse string    `json:"ai_response"`
}

// NewAIResponseReady builds the outbound event for a stored reply
func NewAIResponseReady(messageID int64, response string) AIResponseReadyEvent {
	return AIResponseReadyEvent{
		EventType:  EventAIResponseReady,
		MessageID:  messageID,
		AIResponse: response,
	}
}

// Validate checks that the payload required by EventType is present and complete.
// Unknown event types are not validated here.
func (e *Envelope) Validate() error {
	var payload interface{}
	switch e.EventType {
	case EventNewMessage:
		if e.MessageData == nil {
			return fmt.Errorf("%w: %s without message_data", ErrInvalidPayload, e.EventType)
		}
		payload = e.MessageData
	case EventUserCreated, EventUserUpdated:
		if e.User == nil {
			return fmt.Errorf("%w: %s without user", ErrInvalidPayload, e.EventType)
		}
		payload = e.User
	case EventProductCreated, EventProductUpdated:
		if e.Product == nil {
			return fmt.Errorf("%w: %s without product", ErrInvalidPayload, e.EventType)
		}
		if _, ok := e.Product.Owner(); !ok && e.EventType == EventProductCreated {
			return fmt.Errorf("%w: product_created without owner_id", ErrInvalidPayload)
		}
		payload = e.Product
	case EventProductDeleted:
		if e.ProductID == nil || *e.ProductID == 0 {
			return fmt.Errorf("%w: product_deleted without product_id", ErrInvalidPayload)
		}
		return nil
	case EventResponseDelivered:
		if e.MessageID == nil || *e.MessageID == 0 {
			return fmt.Errorf("%w: response_delivered without message_id", ErrInvalidPayload)
		}
		return nil
	default:
		return nil
	}

	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.EventType, err)
	}
	return nil
}
