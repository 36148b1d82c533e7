package models

import "time"

type Visit struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	MemberID     uint      `gorm:"index;not null" json:"memberId"`
	MemberPlanID uint      `gorm:"index;not null" json:"memberPlanId"`
	VisitDate    time.Time `gorm:"not null;index" json:"visitDate"`
	HoursUsed    int       `gorm:"not null;default:1" json:"hoursUsed"`
	Notes        string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
