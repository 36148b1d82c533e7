// services/reminder_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership-erp/models"
	"membership-erp/utils"
)

// ReminderService tells parents their plan is about to run out.
type ReminderService struct {
	store     *Store
	notifier  Notifier
	daysAhead int
	log       *logrus.Entry
	now       func() time.Time
}

func NewReminderService(store *Store, notifier Notifier, daysAhead int, log *logrus.Logger) *ReminderService {
	return &ReminderService{
		store:     store,
		notifier:  notifier,
		daysAhead: daysAhead,
		log:       log.WithField("component", "reminders"),
		now:       time.Now,
	}
}

// StartScheduler registers the daily run and starts the cron loop. The
// caller stops the returned scheduler on shutdown.
func (s *ReminderService) StartScheduler(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.SendExpiryReminders(ctx); err != nil {
			s.log.WithError(err).Error("expiry reminder run failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	c.Start()
	s.log.WithField("schedule", spec).Info("Reminder scheduler started")
	return c, nil
}

// SendExpiryReminders queues one reminder per member plan ending within the
// look-ahead window and marks it so later runs skip it. It returns how many
// plans were handled.
func (s *ReminderService) SendExpiryReminders(ctx context.Context) (int, error) {
	today := utils.DateOf(s.now())
	until := today.AddDate(0, 0, s.daysAhead)

	var due []models.MemberPlan
	err := s.store.Read(ctx, "due_reminders", func(db *gorm.DB) error {
		return db.Preload("Member").Preload("Plan").
			Where("end_date >= ? AND end_date <= ? AND reminder_sent_at IS NULL", today, until).
			Order("end_date ASC").
			Find(&due).Error
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, mp := range due {
		if mp.Member.ID == 0 {
			continue
		}
		// A quota plan that is already used up has nothing left to expire.
		if mp.QuotaExhausted() {
			continue
		}
		s.remind(mp)

		now := s.now()
		if err := s.store.Tx(ctx, "mark_reminder", func(tx *gorm.DB) error {
			return tx.Model(&models.MemberPlan{}).Where("id = ?", mp.ID).UpdateColumn("reminder_sent_at", now).Error
		}); err != nil {
			return sent, err
		}
		sent++
	}

	s.log.WithFields(logrus.Fields{"due": len(due), "sent": sent}).Info("Expiry reminder run completed")
	return sent, nil
}

func (s *ReminderService) remind(mp models.MemberPlan) {
	member := mp.Member
	memberID := member.ID

	message := fmt.Sprintf("Hi %s, %s's %s plan (membership %s) ends on %s.",
		member.ParentName, member.ChildName, mp.Plan.Name, member.MembershipNo, utils.FormatDate(mp.EndDate))
	if left := mp.VisitsRemaining(); left > 0 {
		message += fmt.Sprintf(" %d visits are still available.", left)
	}
	message += " Renew at the front desk to keep visiting."

	s.notifier.Dispatch(Notification{
		MemberID:  &memberID,
		Kind:      KindExpiryReminder,
		Channel:   ChannelSMS,
		Recipient: member.Phone,
		Body:      message,
	})
	if member.ParentEmail != "" {
		s.notifier.Dispatch(Notification{
			MemberID:  &memberID,
			Kind:      KindExpiryReminder,
			Channel:   ChannelEmail,
			Recipient: member.ParentEmail,
			Subject:   "Membership expiring soon",
			Body:      message,
		})
	}
}
