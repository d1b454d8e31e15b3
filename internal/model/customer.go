package model

import "time"

// Customer end user messaging one business. IDs come from the WhatsApp connector.
type Customer struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false;comment:customer id assigned by connector" json:"id"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_customer_user_whatsapp,priority:1;comment:owning user id" json:"user_id"`
	WhatsAppNo *string   `gorm:"column:whatsapp_no;size:32;uniqueIndex:idx_customer_user_whatsapp,priority:2;comment:whatsapp number" json:"whatsapp_no,omitempty"`
	Address    *string   `gorm:"size:255;comment:cached channel metadata" json:"address,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName set name
func (Customer) TableName() string {
	return "customers"
}
