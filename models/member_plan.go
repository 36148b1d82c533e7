package models

import "time"

// MemberPlan is a time-boxed assignment of a Plan to a Member. VisitsUsed is
// only ever advanced by recording a visit.
type MemberPlan struct {
	ID       uint `gorm:"primarykey" json:"id"`
	MemberID uint `gorm:"index;not null" json:"memberId"`
	PlanID   uint `gorm:"index;not null" json:"planId"`

	StartDate time.Time `gorm:"not null;index" json:"startDate"`
	EndDate   time.Time `gorm:"not null;index" json:"endDate"`

	VisitsUsed int `gorm:"not null;default:0" json:"visitsUsed"`
	// EntitledVisits is copied from the plan at assignment; nil means the
	// plan is duration based and has no quota.
	EntitledVisits *int `json:"entitledVisits,omitempty"`

	ReminderSentAt *time.Time `json:"reminderSentAt,omitempty"`

	Member Member `gorm:"foreignKey:MemberID" json:"-"`
	Plan   Plan   `gorm:"foreignKey:PlanID" json:"plan,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Covers reports whether day falls inside [StartDate, EndDate]. Both bounds
// are dates, so only the calendar day of each value is compared.
func (mp MemberPlan) Covers(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(truncateDay(mp.StartDate)) && !d.After(truncateDay(mp.EndDate))
}

// VisitsRemaining returns -1 for plans without a quota.
func (mp MemberPlan) VisitsRemaining() int {
	if mp.EntitledVisits == nil {
		return -1
	}
	if left := *mp.EntitledVisits - mp.VisitsUsed; left > 0 {
		return left
	}
	return 0
}

func (mp MemberPlan) QuotaExhausted() bool {
	return mp.EntitledVisits != nil && mp.VisitsUsed >= *mp.EntitledVisits
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
