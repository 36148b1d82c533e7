package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanKind string

const (
	// PlanKindDuration grants unlimited visits for DurationDays.
	PlanKindDuration PlanKind = "duration"
	// PlanKindVisits grants EntitledVisits visits within ValidityDays.
	PlanKindVisits PlanKind = "visits"
)

func (k PlanKind) Valid() bool {
	return k == PlanKindDuration || k == PlanKindVisits
}

// Plan is a read-only template that MemberPlans are stamped from. Kind
// selects which of the day/visit columns apply.
type Plan struct {
	ID    uint            `gorm:"primarykey" json:"id"`
	Name  string          `gorm:"not null" json:"name"`
	Kind  PlanKind        `gorm:"type:varchar(20);not null" json:"kind"`
	Price decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`

	DurationDays   int  `json:"durationDays,omitempty"`
	EntitledVisits *int `json:"entitledVisits,omitempty"`
	PerVisitHours  int  `json:"perVisitHours,omitempty"`
	ValidityDays   int  `json:"validityDays,omitempty"`

	IsActive bool `gorm:"default:true" json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidityPeriodDays is the length of the window a MemberPlan of this plan
// covers.
func (p Plan) ValidityPeriodDays() int {
	if p.Kind == PlanKindVisits {
		return p.ValidityDays
	}
	return p.DurationDays
}

func (p Plan) IsQuotaBased() bool {
	return p.Kind == PlanKindVisits && p.EntitledVisits != nil
}
