package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership-erp/models"
	"membership-erp/utils"
)

const qrCheckInNote = "QR Check-in"

// VisitService records check-ins against the member's active plan.
type VisitService struct {
	store        *Store
	notifier     Notifier
	certificates *CertificateService
	log          *logrus.Entry
	now          func() time.Time
}

// NewVisitService wires the visit ledger. notifier may be nil, in which case
// completion certificates are not sent.
func NewVisitService(store *Store, notifier Notifier, certificates *CertificateService, log *logrus.Logger) *VisitService {
	return &VisitService{
		store:        store,
		notifier:     notifier,
		certificates: certificates,
		log:          log.WithField("component", "visits"),
		now:          time.Now,
	}
}

type RecordVisitInput struct {
	MemberID  uint `validate:"required"`
	VisitDate time.Time
	// HoursUsed defaults to 1 when zero.
	HoursUsed int `validate:"min=0"`
	Notes     string
}

// RecordVisit charges a visit to the plan covering the visit date. For
// quota plans the counter is advanced by a conditional update, so the last
// remaining visit can only be claimed once no matter how many check-ins
// race for it.
func (s *VisitService) RecordVisit(ctx context.Context, input RecordVisitInput) (*models.Visit, error) {
	if input.HoursUsed < 0 {
		return nil, &ValidationError{Field: "hoursUsed", Message: "must not be negative"}
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.HoursUsed == 0 {
		input.HoursUsed = 1
	}
	if input.VisitDate.IsZero() {
		input.VisitDate = s.now()
	}
	day := utils.DateOf(input.VisitDate)

	var (
		visit     models.Visit
		member    models.Member
		plan      models.MemberPlan
		completed bool
	)
	err := s.store.Tx(ctx, "record_visit", func(tx *gorm.DB) error {
		if err := tx.First(&member, input.MemberID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "member", ID: input.MemberID}
			}
			return err
		}

		active, err := selectActivePlan(tx, member.ID, day)
		if err != nil {
			return err
		}
		if active == nil {
			ruleRejections.WithLabelValues("no_active_plan").Inc()
			return &NoActivePlanError{MemberID: member.ID, Date: day}
		}

		update := tx.Model(&models.MemberPlan{}).Where("id = ?", active.ID)
		if active.EntitledVisits != nil {
			update = update.Where("visits_used < entitled_visits")
		}
		res := update.UpdateColumn("visits_used", gorm.Expr("visits_used + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			ruleRejections.WithLabelValues("quota_exceeded").Inc()
			return &QuotaExceededError{MemberPlanID: active.ID, Entitled: *active.EntitledVisits}
		}

		visit = models.Visit{
			MemberID:     member.ID,
			MemberPlanID: active.ID,
			VisitDate:    day,
			HoursUsed:    input.HoursUsed,
			Notes:        strings.TrimSpace(input.Notes),
		}
		if err := tx.Create(&visit).Error; err != nil {
			return err
		}

		if err := tx.Preload("Plan").First(&plan, active.ID).Error; err != nil {
			return err
		}
		completed = plan.EntitledVisits != nil && plan.VisitsUsed == *plan.EntitledVisits
		return nil
	})
	if err != nil {
		return nil, err
	}

	visitsRecorded.Inc()
	s.log.WithFields(logrus.Fields{
		"member_id":      member.ID,
		"member_plan_id": plan.ID,
		"visits_used":    plan.VisitsUsed,
	}).Info("visit recorded")

	if completed {
		s.sendCertificate(member, plan)
	}
	return &visit, nil
}

// sendCertificate queues the completion certificate. Delivery problems are
// logged by the notifier and never reach the caller.
func (s *VisitService) sendCertificate(member models.Member, plan models.MemberPlan) {
	if s.notifier == nil || s.certificates == nil || member.ParentEmail == "" {
		return
	}
	pdf, err := s.certificates.Render(member, plan)
	if err != nil {
		s.log.WithError(err).WithField("member_id", member.ID).Error("failed to render certificate")
		return
	}
	memberID := member.ID
	s.notifier.Dispatch(Notification{
		MemberID:  &memberID,
		Kind:      KindCertificate,
		Channel:   ChannelEmail,
		Recipient: member.ParentEmail,
		Subject:   "Membership Completed - Certificate",
		Body: fmt.Sprintf("Dear %s,\n\nCongratulations! %s has completed all %d visits of the %s plan. Attached is your certificate.\n",
			member.ParentName, member.ChildName, *plan.EntitledVisits, plan.Plan.Name),
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("certificate_%s.pdf", member.MembershipNo),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
}

// CheckInByMembershipNo records today's visit from a scanned QR payload.
func (s *VisitService) CheckInByMembershipNo(ctx context.Context, payload string) (*models.Visit, *models.Member, error) {
	membershipNo, err := DecodeQRPayload(payload)
	if err != nil {
		return nil, nil, err
	}

	var member models.Member
	err = s.store.Read(ctx, "checkin_lookup", func(db *gorm.DB) error {
		return db.Where("membership_no = ?", membershipNo).First(&member).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, &NotFoundError{Entity: "member", ID: membershipNo}
		}
		return nil, nil, err
	}

	visit, err := s.RecordVisit(ctx, RecordVisitInput{
		MemberID:  member.ID,
		VisitDate: s.now(),
		HoursUsed: 1,
		Notes:     qrCheckInNote,
	})
	if err != nil {
		return nil, &member, err
	}
	return visit, &member, nil
}

type VisitFilter struct {
	MemberID uint
	From, To time.Time
	Limit    int
}

func (s *VisitService) ListVisits(ctx context.Context, filter VisitFilter) ([]models.Visit, error) {
	var visits []models.Visit
	err := s.store.Read(ctx, "list_visits", func(db *gorm.DB) error {
		query := db.Order("visit_date DESC, id DESC")
		if filter.MemberID != 0 {
			query = query.Where("member_id = ?", filter.MemberID)
		}
		if !filter.From.IsZero() {
			query = query.Where("visit_date >= ?", utils.DateOf(filter.From))
		}
		if !filter.To.IsZero() {
			query = query.Where("visit_date <= ?", utils.DateOf(filter.To))
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Find(&visits).Error
	})
	return visits, err
}
