package model

import "time"

// PlaceholderUserName is the display name given to owners synthesized ahead of their user_created event
const PlaceholderUserName = "Unknown"

// User business owner (tenant) replicated from the auth service
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false;comment:user id assigned by auth service" json:"id"`
	Name          string    `gorm:"size:100;not null;index;comment:display name" json:"name"`
	Email         *string   `gorm:"size:255;comment:email" json:"email,omitempty"`
	WhatsAppNo    *string   `gorm:"column:whatsapp_no;size:32;comment:whatsapp sender number" json:"whatsapp_no,omitempty"`
	PhoneNumberID *string   `gorm:"size:64;comment:cloud api phone number id" json:"phone_number_id,omitempty"`
	Placeholder   bool      `gorm:"not null;default:false;comment:created before its user_created event" json:"placeholder"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// NewPlaceholderUser builds the minimal owner row used when a product arrives before its owner
func NewPlaceholderUser(id int64) *User {
	return &User{ID: id, Name: PlaceholderUserName, Placeholder: true}
}
