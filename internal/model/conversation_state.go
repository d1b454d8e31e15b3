package model

import "time"

// ConversationState last product a customer's conversation is about, one row per customer
type ConversationState struct {
	CustomerID    int64     `gorm:"primaryKey;autoIncrement:false;comment:customer id" json:"customer_id"`
	LastProductID *int64    `gorm:"index;comment:last referenced product" json:"last_product_id,omitempty"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName set name
func (ConversationState) TableName() string {
	return "conversation_state"
}
