package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"membership-erp/models"
	"membership-erp/utils"
)

const expiringWindowDays = 7

type ExpiringPlan struct {
	MemberPlanID uint   `json:"memberPlanId"`
	MemberID     uint   `json:"memberId"`
	MembershipNo string `json:"membershipNo"`
	ChildName    string `json:"childName"`
	PlanName     string `json:"planName"`
	EndDate      string `json:"endDate"`
	DaysLeft     int    `json:"daysLeft"`
}

type DashboardOverview struct {
	TotalMembers       int64           `json:"totalMembers"`
	ActivePlans        int64           `json:"activePlans"`
	VisitsToday        int64           `json:"visitsToday"`
	MonthlyRevenue     decimal.Decimal `json:"monthlyRevenue"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	ExpiringPlans      []ExpiringPlan  `json:"expiringPlans"`
}

type DashboardService struct {
	store *Store
	now   func() time.Time
}

func NewDashboardService(store *Store) *DashboardService {
	return &DashboardService{store: store, now: time.Now}
}

func (s *DashboardService) Overview(ctx context.Context) (*DashboardOverview, error) {
	now := s.now()
	today := utils.DateOf(now)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := &DashboardOverview{ExpiringPlans: []ExpiringPlan{}}

	err := s.store.Read(ctx, "dashboard", func(db *gorm.DB) error {
		if err := db.Model(&models.Member{}).Count(&out.TotalMembers).Error; err != nil {
			return err
		}
		if err := db.Model(&models.MemberPlan{}).
			Where("start_date <= ? AND end_date >= ?", today, today).
			Count(&out.ActivePlans).Error; err != nil {
			return err
		}
		if err := db.Model(&models.Visit{}).Where("visit_date = ?", today).Count(&out.VisitsToday).Error; err != nil {
			return err
		}

		// Sums are done here rather than in SQL so decimals stay exact on
		// every driver.
		var payments []models.Payment
		if err := db.Select("amount_paid").Where("paid_at >= ?", firstOfMonth).Find(&payments).Error; err != nil {
			return err
		}
		out.MonthlyRevenue = decimal.Zero
		for _, p := range payments {
			out.MonthlyRevenue = out.MonthlyRevenue.Add(p.AmountPaid)
		}

		var open []models.Invoice
		if err := db.Select("amount", "amount_paid").Where("status <> ?", models.InvoicePaid).Find(&open).Error; err != nil {
			return err
		}
		out.OutstandingBalance = decimal.Zero
		for _, inv := range open {
			out.OutstandingBalance = out.OutstandingBalance.Add(inv.Balance())
		}

		var expiring []models.MemberPlan
		if err := db.Preload("Member").Preload("Plan").
			Where("end_date >= ? AND end_date <= ?", today, today.AddDate(0, 0, expiringWindowDays)).
			Order("end_date ASC").
			Find(&expiring).Error; err != nil {
			return err
		}
		for _, mp := range expiring {
			if mp.Member.ID == 0 {
				continue
			}
			out.ExpiringPlans = append(out.ExpiringPlans, ExpiringPlan{
				MemberPlanID: mp.ID,
				MemberID:     mp.MemberID,
				MembershipNo: mp.Member.MembershipNo,
				ChildName:    mp.Member.ChildName,
				PlanName:     mp.Plan.Name,
				EndDate:      utils.FormatDate(mp.EndDate),
				DaysLeft:     utils.DaysBetween(today, mp.EndDate),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
