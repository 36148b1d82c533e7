package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"membership-erp/models"
	"membership-erp/utils"
)

const (
	OverlapLatest = "latest"
	OverlapReject = "reject"
)

type MembershipOptions struct {
	NumberPrefix  string
	CreateRetries int
	OverlapPolicy string
}

// MembershipService owns members, the plan catalogue and plan assignment.
type MembershipService struct {
	store   *Store
	log     *logrus.Entry
	prefix  string
	retries int
	overlap string
	now     func() time.Time
}

func NewMembershipService(store *Store, opts MembershipOptions, log *logrus.Logger) *MembershipService {
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = "ZPHSI"
	}
	if opts.CreateRetries < 1 {
		opts.CreateRetries = 5
	}
	if opts.OverlapPolicy == "" {
		opts.OverlapPolicy = OverlapLatest
	}
	return &MembershipService{
		store:   store,
		log:     log.WithField("component", "membership"),
		prefix:  opts.NumberPrefix,
		retries: opts.CreateRetries,
		overlap: opts.OverlapPolicy,
		now:     time.Now,
	}
}

type CreateMemberInput struct {
	ParentName  string `validate:"required"`
	Phone       string `validate:"required"`
	ChildName   string `validate:"required"`
	ChildDOB    *time.Time
	ParentEmail string `validate:"omitempty,email"`
}

func (in *CreateMemberInput) normalize() {
	in.ParentName = strings.TrimSpace(in.ParentName)
	in.Phone = utils.NormalizePhone(in.Phone)
	in.ChildName = strings.TrimSpace(in.ChildName)
	in.ParentEmail = strings.TrimSpace(in.ParentEmail)
}

func (in CreateMemberInput) validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if !utils.ValidatePhone(in.Phone) {
		return &ValidationError{Field: "phone", Message: "invalid phone number format"}
	}
	return nil
}

// GetMemberCount counts every member ever created, soft-deleted rows
// included, so the next sequential number never lands on a retired one.
func (s *MembershipService) GetMemberCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.store.Read(ctx, "member_count", func(db *gorm.DB) error {
		return countMembers(db, &count)
	})
	return count, err
}

func countMembers(db *gorm.DB, count *int64) error {
	return db.Unscoped().Model(&models.Member{}).Count(count).Error
}

func (s *MembershipService) formatNumber(n int64) string {
	return fmt.Sprintf("%s-%04d", s.prefix, n)
}

// CreateMember inserts a member under a freshly generated membership number.
// The number comes from the member count; if another insert claimed it
// first the unique index rejects ours and the count is read again, up to the
// configured number of attempts.
func (s *MembershipService) CreateMember(ctx context.Context, input CreateMemberInput) (*models.Member, error) {
	input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	var lastTried int64
	for attempt := 1; attempt <= s.retries; attempt++ {
		var member models.Member
		err := s.store.Tx(ctx, "create_member", func(tx *gorm.DB) error {
			var count int64
			if err := countMembers(tx, &count); err != nil {
				return err
			}
			next := count + 1
			if next <= lastTried {
				next = lastTried + 1
			}
			lastTried = next

			member = models.Member{
				MembershipNo: s.formatNumber(next),
				ParentName:   input.ParentName,
				Phone:        input.Phone,
				ChildName:    input.ChildName,
				ChildDOB:     input.ChildDOB,
				ParentEmail:  input.ParentEmail,
				MemberSince:  utils.DateOf(s.now()),
			}
			return tx.Create(&member).Error
		})
		if err == nil {
			membersCreated.Inc()
			s.log.WithFields(logrus.Fields{
				"member_id":     member.ID,
				"membership_no": member.MembershipNo,
			}).Info("member created")
			return &member, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		membershipNoCollisions.Inc()
		s.log.WithFields(logrus.Fields{
			"attempt":       attempt,
			"membership_no": s.formatNumber(lastTried),
		}).Warn("membership number taken, retrying")
	}

	ruleRejections.WithLabelValues("membership_no_conflict").Inc()
	return nil, &ConflictError{Message: fmt.Sprintf("could not allocate a membership number after %d attempts", s.retries)}
}

type UpdateMemberInput struct {
	ParentName  *string
	Phone       *string
	ChildName   *string
	ChildDOB    *time.Time
	ParentEmail *string
}

// UpdateMember edits identity fields. The membership number is never
// touched.
func (s *MembershipService) UpdateMember(ctx context.Context, id uint, input UpdateMemberInput) (*models.Member, error) {
	var member models.Member
	err := s.store.Tx(ctx, "update_member", func(tx *gorm.DB) error {
		if err := tx.First(&member, id).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "member", ID: id}
			}
			return err
		}

		if input.ParentName != nil {
			if member.ParentName = strings.TrimSpace(*input.ParentName); member.ParentName == "" {
				return &ValidationError{Field: "parentName", Message: "is required"}
			}
		}
		if input.ChildName != nil {
			if member.ChildName = strings.TrimSpace(*input.ChildName); member.ChildName == "" {
				return &ValidationError{Field: "childName", Message: "is required"}
			}
		}
		if input.Phone != nil {
			phone := utils.NormalizePhone(*input.Phone)
			if !utils.ValidatePhone(phone) {
				return &ValidationError{Field: "phone", Message: "invalid phone number format"}
			}
			member.Phone = phone
		}
		if input.ParentEmail != nil {
			email := strings.TrimSpace(*input.ParentEmail)
			if email != "" {
				if err := validate.Var(email, "email"); err != nil {
					return &ValidationError{Field: "parentEmail", Message: "must be a valid email address"}
				}
			}
			member.ParentEmail = email
		}
		if input.ChildDOB != nil {
			member.ChildDOB = input.ChildDOB
		}

		return tx.Save(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *MembershipService) GetMember(ctx context.Context, id uint) (*models.Member, error) {
	return s.findMember(ctx, "id = ?", id, id)
}

func (s *MembershipService) GetMemberByMembershipNo(ctx context.Context, membershipNo string) (*models.Member, error) {
	membershipNo = strings.ToUpper(strings.TrimSpace(membershipNo))
	return s.findMember(ctx, "membership_no = ?", membershipNo, membershipNo)
}

func (s *MembershipService) GetMemberByPhone(ctx context.Context, phone string) (*models.Member, error) {
	phone = utils.NormalizePhone(phone)
	return s.findMember(ctx, "phone = ?", phone, phone)
}

func (s *MembershipService) findMember(ctx context.Context, query string, arg, display interface{}) (*models.Member, error) {
	var member models.Member
	err := s.store.Read(ctx, "get_member", func(db *gorm.DB) error {
		return db.Where(query, arg).First(&member).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Entity: "member", ID: display}
		}
		return nil, err
	}
	return &member, nil
}

// ListMembers returns members ordered by membership number, optionally
// filtered by a case-insensitive match on names, phone or number.
func (s *MembershipService) ListMembers(ctx context.Context, q string) ([]models.Member, error) {
	var members []models.Member
	err := s.store.Read(ctx, "list_members", func(db *gorm.DB) error {
		query := db.Order("membership_no ASC")
		if q = strings.TrimSpace(q); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			query = query.Where(
				"LOWER(parent_name) LIKE ? OR LOWER(child_name) LIKE ? OR phone LIKE ? OR LOWER(membership_no) LIKE ?",
				like, like, like, like,
			)
		}
		return query.Find(&members).Error
	})
	return members, err
}

// DeleteMember removes a member with its plans and visits. Members that have
// been invoiced are kept for the ledger.
func (s *MembershipService) DeleteMember(ctx context.Context, id uint) error {
	return s.store.Tx(ctx, "delete_member", func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.First(&member, id).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "member", ID: id}
			}
			return err
		}

		var invoices int64
		if err := tx.Model(&models.Invoice{}).Where("member_id = ?", id).Count(&invoices).Error; err != nil {
			return err
		}
		if invoices > 0 {
			return &ConflictError{Message: fmt.Sprintf("member %s has %d invoices and cannot be deleted", member.MembershipNo, invoices)}
		}

		if err := tx.Where("member_id = ?", id).Delete(&models.Visit{}).Error; err != nil {
			return err
		}
		if err := tx.Where("member_id = ?", id).Delete(&models.MemberPlan{}).Error; err != nil {
			return err
		}
		return tx.Delete(&member).Error
	})
}

type CreatePlanInput struct {
	Name           string          `validate:"required"`
	Kind           models.PlanKind `validate:"required,oneof=duration visits"`
	Price          decimal.Decimal
	DurationDays   int
	EntitledVisits *int
	PerVisitHours  int `validate:"min=0"`
	ValidityDays   int
}

func (in CreatePlanInput) validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	switch in.Kind {
	case models.PlanKindDuration:
		if in.DurationDays <= 0 {
			return &ValidationError{Field: "durationDays", Message: "must be greater than 0"}
		}
	case models.PlanKindVisits:
		if in.EntitledVisits == nil || *in.EntitledVisits <= 0 {
			return &ValidationError{Field: "entitledVisits", Message: "must be greater than 0"}
		}
		if in.ValidityDays <= 0 {
			return &ValidationError{Field: "validityDays", Message: "must be greater than 0"}
		}
	}
	return nil
}

func (s *MembershipService) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := input.validate(); err != nil {
		return nil, err
	}

	plan := models.Plan{
		Name:          input.Name,
		Kind:          input.Kind,
		Price:         input.Price.Round(2),
		PerVisitHours: input.PerVisitHours,
		IsActive:      true,
	}
	if input.Kind == models.PlanKindDuration {
		plan.DurationDays = input.DurationDays
	} else {
		visits := *input.EntitledVisits
		plan.EntitledVisits = &visits
		plan.ValidityDays = input.ValidityDays
	}

	err := s.store.Tx(ctx, "create_plan", func(tx *gorm.DB) error {
		return tx.Create(&plan).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"plan_id": plan.ID, "kind": plan.Kind}).Info("plan created")
	return &plan, nil
}

func (s *MembershipService) GetPlan(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	err := s.store.Read(ctx, "get_plan", func(db *gorm.DB) error {
		return db.First(&plan, id).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Entity: "plan", ID: id}
		}
		return nil, err
	}
	return &plan, nil
}

func (s *MembershipService) ListPlans(ctx context.Context, includeInactive bool) ([]models.Plan, error) {
	var plans []models.Plan
	err := s.store.Read(ctx, "list_plans", func(db *gorm.DB) error {
		query := db.Order("id ASC")
		if !includeInactive {
			query = query.Where("is_active = ?", true)
		}
		return query.Find(&plans).Error
	})
	return plans, err
}

// DeactivatePlan hides a plan from new assignments. Existing member plans
// keep working.
func (s *MembershipService) DeactivatePlan(ctx context.Context, id uint) error {
	return s.store.Tx(ctx, "deactivate_plan", func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).Where("id = ?", id).Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "plan", ID: id}
		}
		return nil
	})
}

// AssignPlan gives a member a plan starting on startDate (today when zero).
func (s *MembershipService) AssignPlan(ctx context.Context, memberID, planID uint, startDate time.Time) (*models.MemberPlan, error) {
	mp, _, err := s.assign(ctx, memberID, planID, startDate, false)
	return mp, err
}

// AssignPlanWithInvoice assigns the plan and, when it has a price, bills it
// in the same transaction.
func (s *MembershipService) AssignPlanWithInvoice(ctx context.Context, memberID, planID uint, startDate time.Time) (*models.MemberPlan, *models.Invoice, error) {
	return s.assign(ctx, memberID, planID, startDate, true)
}

func (s *MembershipService) assign(ctx context.Context, memberID, planID uint, startDate time.Time, bill bool) (*models.MemberPlan, *models.Invoice, error) {
	if startDate.IsZero() {
		startDate = s.now()
	}
	start := utils.DateOf(startDate)

	var mp models.MemberPlan
	var invoice *models.Invoice
	err := s.store.Tx(ctx, "assign_plan", func(tx *gorm.DB) error {
		var member models.Member
		// The row lock serialises assignments for one member, so the overlap
		// check below sees every committed window.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&member, memberID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "member", ID: memberID}
			}
			return err
		}
		var plan models.Plan
		if err := tx.Where("is_active = ?", true).First(&plan, planID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "plan", ID: planID}
			}
			return err
		}

		mp = models.MemberPlan{
			MemberID:   memberID,
			PlanID:     planID,
			StartDate:  start,
			EndDate:    start.AddDate(0, 0, plan.ValidityPeriodDays()),
			VisitsUsed: 0,
		}
		if plan.IsQuotaBased() {
			visits := *plan.EntitledVisits
			mp.EntitledVisits = &visits
		}

		if s.overlap == OverlapReject {
			if err := rejectOverlap(tx, mp); err != nil {
				return err
			}
		}

		if err := tx.Create(&mp).Error; err != nil {
			return err
		}
		mp.Plan = plan

		if bill && plan.Price.Round(2).IsPositive() {
			planID := mp.ID
			inv, err := insertInvoice(tx, memberID, &planID, plan.Price,
				fmt.Sprintf("%s plan %s to %s", plan.Name, utils.FormatDate(mp.StartDate), utils.FormatDate(mp.EndDate)),
				start)
			if err != nil {
				return err
			}
			invoice = inv
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	plansAssigned.WithLabelValues(string(mp.Plan.Kind)).Inc()
	s.log.WithFields(logrus.Fields{
		"member_id":      memberID,
		"member_plan_id": mp.ID,
		"end_date":       utils.FormatDate(mp.EndDate),
	}).Info("plan assigned")
	return &mp, invoice, nil
}

func rejectOverlap(tx *gorm.DB, candidate models.MemberPlan) error {
	var existing []models.MemberPlan
	if err := tx.Where("member_id = ?", candidate.MemberID).Find(&existing).Error; err != nil {
		return err
	}
	for _, mp := range existing {
		if !candidate.StartDate.After(mp.EndDate) && !candidate.EndDate.Before(mp.StartDate) {
			ruleRejections.WithLabelValues("plan_overlap").Inc()
			return &ConflictError{Message: fmt.Sprintf("plan window overlaps member plan %d (%s to %s)",
				mp.ID, utils.FormatDate(mp.StartDate), utils.FormatDate(mp.EndDate))}
		}
	}
	return nil
}

// selectActivePlan picks the member plan whose window contains day. When
// windows overlap the latest start wins, then the newest assignment.
func selectActivePlan(db *gorm.DB, memberID uint, day time.Time) (*models.MemberPlan, error) {
	var plans []models.MemberPlan
	if err := db.Where("member_id = ?", memberID).
		Order("start_date DESC, id DESC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].Covers(day) {
			return &plans[i], nil
		}
	}
	return nil, nil
}

// ActivePlan returns the plan a check-in on day would use.
func (s *MembershipService) ActivePlan(ctx context.Context, memberID uint, day time.Time) (*models.MemberPlan, error) {
	var active *models.MemberPlan
	err := s.store.Read(ctx, "active_plan", func(db *gorm.DB) error {
		mp, err := selectActivePlan(db, memberID, day)
		if err != nil || mp == nil {
			return err
		}
		if err := db.First(&mp.Plan, mp.PlanID).Error; err != nil {
			return err
		}
		active = mp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, &NoActivePlanError{MemberID: memberID, Date: day}
	}
	return active, nil
}

func (s *MembershipService) ListMemberPlans(ctx context.Context, memberID uint) ([]models.MemberPlan, error) {
	var plans []models.MemberPlan
	err := s.store.Read(ctx, "list_member_plans", func(db *gorm.DB) error {
		return db.Preload("Plan").
			Where("member_id = ?", memberID).
			Order("start_date DESC, id DESC").
			Find(&plans).Error
	})
	return plans, err
}

// MemberSummary is the lookup view: who the member is, what they can use
// today and what they did recently.
type MemberSummary struct {
	Member          models.Member      `json:"member"`
	ActivePlan      *models.MemberPlan `json:"activePlan,omitempty"`
	VisitsRemaining *int               `json:"visitsRemaining,omitempty"`
	RecentVisits    []models.Visit     `json:"recentVisits"`
}

func (s *MembershipService) Summary(ctx context.Context, memberID uint) (*MemberSummary, error) {
	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	summary := &MemberSummary{Member: *member}

	active, err := s.ActivePlan(ctx, memberID, s.now())
	var noPlan *NoActivePlanError
	switch {
	case errors.As(err, &noPlan):
	case err != nil:
		return nil, err
	default:
		summary.ActivePlan = active
		if left := active.VisitsRemaining(); left >= 0 {
			summary.VisitsRemaining = &left
		}
	}

	err = s.store.Read(ctx, "recent_visits", func(db *gorm.DB) error {
		return db.Where("member_id = ?", memberID).
			Order("visit_date DESC").
			Limit(20).
			Find(&summary.RecentVisits).Error
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
