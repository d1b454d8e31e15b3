package model

import "time"

// Message one customer utterance and the reply generated for it
type Message struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement:false;comment:message id assigned by connector" json:"id"`
	CustomerID          int64     `gorm:"not null;index;comment:customer id" json:"customer_id"`
	UserMessage         string    `gorm:"type:text;not null;comment:customer text" json:"user_message"`
	ResponseMessage     *string   `gorm:"type:text;comment:generated reply" json:"response_message,omitempty"`
	IsResponseGenerated bool      `gorm:"not null;default:false;comment:reply generated" json:"is_response_generated"`
	IsSendResponse      bool      `gorm:"not null;default:false;index;comment:reply delivered to customer" json:"is_send_response"`
	CreatedAt           time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName set name
func (Message) TableName() string {
	return "messages"
}

// HasResponse reports whether a reply was already generated and stored
func (m *Message) HasResponse() bool {
	return m.IsResponseGenerated && m.ResponseMessage != nil
}
