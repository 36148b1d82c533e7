package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a registered family: a parent contact and the child who visits.
// MembershipNo is issued once at creation and never reused, even after a
// soft delete.
type Member struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	MembershipNo string `gorm:"type:varchar(32);uniqueIndex;not null" json:"membershipNo"`

	ParentName  string     `gorm:"not null" json:"parentName"`
	Phone       string     `gorm:"not null;index" json:"phone"`
	ChildName   string     `gorm:"not null" json:"childName"`
	ChildDOB    *time.Time `json:"childDob,omitempty"`
	ParentEmail string     `json:"parentEmail,omitempty"`
	MemberSince time.Time  `gorm:"not null" json:"memberSince"`

	Plans    []MemberPlan `gorm:"foreignKey:MemberID" json:"plans,omitempty"`
	Visits   []Visit      `gorm:"foreignKey:MemberID" json:"visits,omitempty"`
	Invoices []Invoice    `gorm:"foreignKey:MemberID" json:"invoices,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
