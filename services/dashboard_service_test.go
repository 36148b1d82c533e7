package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dashboard := NewDashboardService(f.store)
	dashboard.now = fixedNow

	monthly := f.durationPlan(t, 30, 100)
	a := f.member(t, "A")
	b := f.member(t, "B")
	f.member(t, "C")

	f.assign(t, a.ID, monthly.ID, today.AddDate(0, 0, -25))
	f.assign(t, b.ID, monthly.ID, today)

	_, err := f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: a.ID})
	require.NoError(t, err)
	_, err = f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: b.ID})
	require.NoError(t, err)
	_, err = f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: b.ID, VisitDate: today.AddDate(0, 0, 1)})
	require.NoError(t, err)

	inv := f.invoice(t, a.ID, "200")
	f.invoice(t, b.ID, "75.50")
	_, _, err = f.billing.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, AmountPaid: dec("120")})
	require.NoError(t, err)
	_, _, err = f.billing.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, AmountPaid: dec("30"), PaidAt: today.AddDate(0, -1, 0)})
	require.NoError(t, err)

	overview, err := dashboard.Overview(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, overview.TotalMembers)
	assert.EqualValues(t, 2, overview.ActivePlans)
	assert.EqualValues(t, 2, overview.VisitsToday)
	assertDecimal(t, "120", overview.MonthlyRevenue)
	assertDecimal(t, "125.50", overview.OutstandingBalance)

	require.Len(t, overview.ExpiringPlans, 1)
	expiring := overview.ExpiringPlans[0]
	assert.Equal(t, a.MembershipNo, expiring.MembershipNo)
	assert.Equal(t, "2025-03-15", expiring.EndDate)
	assert.Equal(t, 5, expiring.DaysLeft)
}

func TestDashboardOverview_Empty(t *testing.T) {
	f := newFixture(t)
	dashboard := NewDashboardService(f.store)
	dashboard.now = fixedNow

	overview, err := dashboard.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, overview.TotalMembers)
	assert.True(t, overview.MonthlyRevenue.IsZero())
	assert.NotNil(t, overview.ExpiringPlans)
}
