package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership-erp/models"
)

// Notification kinds recorded in the notification log.
const (
	KindOTP            = "otp"
	KindCertificate    = "certificate"
	KindExpiryReminder = "expiry_reminder"
	KindTest           = "test"
	KindExport         = "export"
)

type Notification struct {
	MemberID *uint
	Kind     string
	// Channel is ChannelEmail or ChannelSMS. SMS may be upgraded to
	// WhatsApp by the sender.
	Channel     string
	Recipient   string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Notifier queues a notification without blocking the caller.
type Notifier interface {
	Dispatch(n Notification)
}

// DispatchNotifier delivers in the background and writes one
// NotificationLog row per attempt. Failures are logged, never returned.
type DispatchNotifier struct {
	store *Store
	email EmailSender
	text  TextSender
	log   *logrus.Entry
	wg    sync.WaitGroup
}

func NewDispatchNotifier(store *Store, email EmailSender, text TextSender, log *logrus.Logger) *DispatchNotifier {
	return &DispatchNotifier{
		store: store,
		email: email,
		text:  text,
		log:   log.WithField("component", "notifier"),
	}
}

func (d *DispatchNotifier) Dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = d.Deliver(ctx, n)
	}()
}

// Deliver sends n synchronously and records the outcome.
func (d *DispatchNotifier) Deliver(ctx context.Context, n Notification) error {
	channel, err := d.send(ctx, n)

	entry := models.NotificationLog{
		MemberID:  n.MemberID,
		Kind:      n.Kind,
		Channel:   channel,
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Status:    "sent",
		SentAt:    time.Now(),
	}
	fields := logrus.Fields{"kind": n.Kind, "channel": channel, "recipient": n.Recipient}
	if err != nil {
		entry.Status = "failed"
		entry.ErrorMessage = err.Error()
		d.log.WithFields(fields).WithError(err).Warn("notification failed")
	} else {
		d.log.WithFields(fields).Info("notification sent")
	}
	notificationsSent.WithLabelValues(channel, entry.Status).Inc()

	if d.store != nil {
		if logErr := d.store.Tx(ctx, "log_notification", func(tx *gorm.DB) error {
			return tx.Create(&entry).Error
		}); logErr != nil {
			d.log.WithError(logErr).Error("failed to write notification log")
		}
	}
	return err
}

func (d *DispatchNotifier) send(ctx context.Context, n Notification) (string, error) {
	switch n.Channel {
	case ChannelEmail:
		if d.email == nil {
			return ChannelEmail, errors.New("email is not configured")
		}
		return ChannelEmail, d.email.SendEmail(ctx, EmailMessage{
			To:          []string{n.Recipient},
			Subject:     n.Subject,
			Body:        n.Body,
			Attachments: n.Attachments,
		})
	default:
		if d.text == nil {
			return ChannelSMS, ErrSMSDisabled
		}
		return d.text.SendText(ctx, n.Recipient, n.Body, true)
	}
}

// Wait blocks until queued deliveries finish. Used on shutdown.
func (d *DispatchNotifier) Wait() {
	d.wg.Wait()
}
