package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-erp/models"
	"membership-erp/testsupport"
)

func TestCreateMember_AssignsSequentialNumbers(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		m := f.member(t, fmt.Sprintf("Child %d", i))
		assert.Equal(t, fmt.Sprintf("ZPHSI-%04d", i), m.MembershipNo)
		assert.Equal(t, today, m.MemberSince)
	}

	count, err := f.members.GetMemberCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestCreateMember_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateMemberInput
		field string
	}{
		{"missing parent", CreateMemberInput{Phone: "+919876543210", ChildName: "A"}, "parentName"},
		{"missing child", CreateMemberInput{ParentName: "P", Phone: "+919876543210"}, "childName"},
		{"blank phone", CreateMemberInput{ParentName: "P", Phone: "   ", ChildName: "A"}, "phone"},
		{"bad phone", CreateMemberInput{ParentName: "P", Phone: "call me", ChildName: "A"}, "phone"},
		{"bad email", CreateMemberInput{ParentName: "P", Phone: "+919876543210", ChildName: "A", ParentEmail: "nope"}, "parentEmail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.members.CreateMember(ctx, tt.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	count, err := f.members.GetMemberCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateMember_NormalizesPhone(t *testing.T) {
	f := newFixture(t)
	m, err := f.members.CreateMember(context.Background(), CreateMemberInput{
		ParentName: "P", Phone: "+91 98765-43210", ChildName: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", m.Phone)

	found, err := f.members.GetMemberByPhone(context.Background(), "+91 (98765) 43210")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)
}

func TestCreateMember_SkipsNumberAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	f.member(t, "First")

	// Claim the number the counter will produce next but one.
	require.NoError(t, f.db.Create(&models.Member{
		MembershipNo: "ZPHSI-0003",
		ParentName:   "Imported",
		Phone:        "+919876543211",
		ChildName:    "Imported",
		MemberSince:  today,
	}).Error)

	m := f.member(t, "Third")
	assert.Equal(t, "ZPHSI-0004", m.MembershipNo)
}

func TestCreateMember_GivesUpAfterRetryBudget(t *testing.T) {
	f := newFixture(t, func(o *MembershipOptions) { o.CreateRetries = 1 })

	require.NoError(t, f.db.Create(&models.Member{
		MembershipNo: "ZPHSI-0002",
		ParentName:   "Imported",
		Phone:        "+919876543211",
		ChildName:    "Imported",
		MemberSince:  today,
	}).Error)

	_, err := f.members.CreateMember(context.Background(), CreateMemberInput{
		ParentName: "P", Phone: "+919876543210", ChildName: "A",
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	var count int64
	require.NoError(t, f.db.Model(&models.Member{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateMember_ConcurrentCallsGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	const workers = 10

	var wg sync.WaitGroup
	numbers := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := f.members.CreateMember(context.Background(), CreateMemberInput{
				ParentName: "P", Phone: "+919876543210", ChildName: fmt.Sprintf("C%d", i),
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- m.MembershipNo
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate membership number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestCreateMember_NumbersNotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	f.member(t, "A")
	b := f.member(t, "B")
	require.NoError(t, f.members.DeleteMember(context.Background(), b.ID))

	c := f.member(t, "C")
	assert.Equal(t, "ZPHSI-0003", c.MembershipNo)
}

func TestUpdateMember(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")
	ctx := context.Background()

	name := "Renamed"
	email := ""
	dob := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err := f.members.UpdateMember(ctx, m.ID, UpdateMemberInput{ChildName: &name, ParentEmail: &email, ChildDOB: &dob})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.ChildName)
	assert.Empty(t, updated.ParentEmail)
	assert.Equal(t, m.MembershipNo, updated.MembershipNo)

	bad := "x"
	_, err = f.members.UpdateMember(ctx, m.ID, UpdateMemberInput{Phone: &bad})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.members.UpdateMember(ctx, 999, UpdateMemberInput{ChildName: &name})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLookupAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "Aarav")
	f.member(t, "Bela")

	got, err := f.members.GetMemberByMembershipNo(ctx, " zphsi-0001 ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.members.GetMemberByMembershipNo(ctx, "ZPHSI-9999")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	all, err := f.members.ListMembers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := f.members.ListMembers(ctx, "BEL")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Bela", filtered[0].ChildName)
}

func TestCreatePlan_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreatePlanInput
		field string
	}{
		{"missing name", CreatePlanInput{Kind: models.PlanKindDuration, DurationDays: 30}, "name"},
		{"bad kind", CreatePlanInput{Name: "X", Kind: "yearly"}, "kind"},
		{"negative price", CreatePlanInput{Name: "X", Kind: models.PlanKindDuration, DurationDays: 30, Price: decimal.NewFromInt(-1)}, "price"},
		{"duration without days", CreatePlanInput{Name: "X", Kind: models.PlanKindDuration}, "durationDays"},
		{"visits without quota", CreatePlanInput{Name: "X", Kind: models.PlanKindVisits, ValidityDays: 30}, "entitledVisits"},
		{"visits without validity", CreatePlanInput{Name: "X", Kind: models.PlanKindVisits, EntitledVisits: intPtr(5)}, "validityDays"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.members.CreatePlan(ctx, tt.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDeactivatePlan_HidesFromCatalogueAndAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "A")
	p := f.durationPlan(t, 30, 100)

	require.NoError(t, f.members.DeactivatePlan(ctx, p.ID))

	active, err := f.members.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.members.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.members.AssignPlan(ctx, m.ID, p.ID, today)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	assert.ErrorAs(t, f.members.DeactivatePlan(ctx, 404), &nf)
}

func TestAssignPlan_ComputesEndDate(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")

	start := time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)
	duration := f.durationPlan(t, 30, 100)
	mp := f.assign(t, m.ID, duration.ID, start)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), mp.StartDate)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), mp.EndDate)
	assert.Zero(t, mp.VisitsUsed)
	assert.Nil(t, mp.EntitledVisits)

	visits := f.visitPlan(t, 10, 60)
	mp = f.assign(t, m.ID, visits.ID, start)
	assert.Equal(t, start.AddDate(0, 0, 60).Truncate(24*time.Hour), mp.EndDate)
	require.NotNil(t, mp.EntitledVisits)
	assert.Equal(t, 10, *mp.EntitledVisits)

	stored := f.reloadPlan(t, mp.ID)
	assert.True(t, stored.EndDate.Equal(mp.EndDate))
}

func TestAssignPlan_DefaultsToToday(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")
	p := f.durationPlan(t, 7, 0)

	mp := f.assign(t, m.ID, p.ID, time.Time{})
	assert.Equal(t, today, mp.StartDate)
	assert.Equal(t, today.AddDate(0, 0, 7), mp.EndDate)
}

func TestAssignPlan_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")
	p := f.durationPlan(t, 30, 100)
	ctx := context.Background()

	var nf *NotFoundError
	_, err := f.members.AssignPlan(ctx, 999, p.ID, today)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "member", nf.Entity)

	_, err = f.members.AssignPlan(ctx, m.ID, 999, today)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "plan", nf.Entity)
}

func TestAssignPlan_OverlapPolicyReject(t *testing.T) {
	f := newFixture(t, func(o *MembershipOptions) { o.OverlapPolicy = OverlapReject })
	m := f.member(t, "A")
	p := f.durationPlan(t, 30, 100)
	ctx := context.Background()

	f.assign(t, m.ID, p.ID, today)

	_, err := f.members.AssignPlan(ctx, m.ID, p.ID, today.AddDate(0, 0, 30))
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict, "window sharing the end date overlaps")

	_, err = f.members.AssignPlan(ctx, m.ID, p.ID, today.AddDate(0, 0, 31))
	assert.NoError(t, err)
}

func TestAssignPlan_LocksMemberRow(t *testing.T) {
	store, mock := newMockStore(t, 1)
	members := NewMembershipService(store, MembershipOptions{OverlapPolicy: OverlapReject}, testsupport.NewLogger())

	stop := errors.New("canceling statement due to lock timeout")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "members" .* FOR UPDATE`).WillReturnError(stop)
	mock.ExpectRollback()

	_, err := members.AssignPlan(context.Background(), 1, 1, today)
	assert.ErrorIs(t, err, stop)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignPlanWithInvoice(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")
	ctx := context.Background()

	paid := f.durationPlan(t, 30, 1200)
	mp, inv, err := f.members.AssignPlanWithInvoice(ctx, m.ID, paid.ID, today)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, models.InvoiceUnpaid, inv.Status)
	require.NotNil(t, inv.MemberPlanID)
	assert.Equal(t, mp.ID, *inv.MemberPlanID)

	free := f.durationPlan(t, 30, 0)
	_, inv, err = f.members.AssignPlanWithInvoice(ctx, m.ID, free.ID, today)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestActivePlan_LatestStartWins(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "A")
	p := f.durationPlan(t, 30, 100)
	ctx := context.Background()

	older := f.assign(t, m.ID, p.ID, today.AddDate(0, 0, -10))
	newer := f.assign(t, m.ID, p.ID, today.AddDate(0, 0, -2))

	active, err := f.members.ActivePlan(ctx, m.ID, today)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active.ID)
	assert.Equal(t, p.Name, active.Plan.Name)

	// Before the newer plan starts only the older one covers the day.
	active, err = f.members.ActivePlan(ctx, m.ID, today.AddDate(0, 0, -5))
	require.NoError(t, err)
	assert.Equal(t, older.ID, active.ID)

	// Same start date: the newest assignment wins.
	tie := f.assign(t, m.ID, p.ID, today.AddDate(0, 0, -2))
	active, err = f.members.ActivePlan(ctx, m.ID, today)
	require.NoError(t, err)
	assert.Equal(t, tie.ID, active.ID)

	_, err = f.members.ActivePlan(ctx, m.ID, today.AddDate(1, 0, 0))
	var noPlan *NoActivePlanError
	assert.ErrorAs(t, err, &noPlan)
}

func TestDeleteMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.durationPlan(t, 30, 100)

	t.Run("removes plans and visits", func(t *testing.T) {
		m := f.member(t, "A")
		f.assign(t, m.ID, p.ID, today)
		_, err := f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: m.ID})
		require.NoError(t, err)

		require.NoError(t, f.members.DeleteMember(ctx, m.ID))

		var plans, visits int64
		f.db.Model(&models.MemberPlan{}).Where("member_id = ?", m.ID).Count(&plans)
		f.db.Model(&models.Visit{}).Where("member_id = ?", m.ID).Count(&visits)
		assert.Zero(t, plans)
		assert.Zero(t, visits)

		_, err = f.members.GetMember(ctx, m.ID)
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("keeps invoiced members", func(t *testing.T) {
		m := f.member(t, "B")
		_, _, err := f.members.AssignPlanWithInvoice(ctx, m.ID, p.ID, today)
		require.NoError(t, err)

		err = f.members.DeleteMember(ctx, m.ID)
		var conflict *ConflictError
		assert.ErrorAs(t, err, &conflict)

		_, err = f.members.GetMember(ctx, m.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown member", func(t *testing.T) {
		var nf *NotFoundError
		assert.ErrorAs(t, f.members.DeleteMember(ctx, 999), &nf)
	})
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "A")

	summary, err := f.members.Summary(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, summary.ActivePlan)
	assert.Empty(t, summary.RecentVisits)

	p := f.visitPlan(t, 5, 30)
	f.assign(t, m.ID, p.ID, today)
	_, err = f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: m.ID})
	require.NoError(t, err)

	summary, err = f.members.Summary(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.ActivePlan)
	require.NotNil(t, summary.VisitsRemaining)
	assert.Equal(t, 4, *summary.VisitsRemaining)
	assert.Len(t, summary.RecentVisits, 1)

	_, err = f.members.Summary(ctx, 999)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}
