package models

import "time"

// NotificationLog records every delivery attempt, successful or not.
type NotificationLog struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	MemberID *uint  `gorm:"index" json:"memberId,omitempty"`
	Kind     string `gorm:"type:varchar(32);index" json:"kind"`
	// Channel is email, sms or whatsapp.
	Channel   string `gorm:"type:varchar(20)" json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	// Status is sent or failed.
	Status       string    `gorm:"type:varchar(20)" json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"errorMessage,omitempty"`
	SentAt       time.Time `json:"sentAt"`
}
