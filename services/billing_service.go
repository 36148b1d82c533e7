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

	"membership-erp/models"
	"membership-erp/utils"
)

const invoiceNoAttempts = 3

// BillingService issues invoices and applies payments against them.
type BillingService struct {
	store *Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewBillingService(store *Store, log *logrus.Logger) *BillingService {
	return &BillingService{
		store: store,
		log:   log.WithField("component", "billing"),
		now:   time.Now,
	}
}

type CreateInvoiceInput struct {
	MemberID     uint `validate:"required"`
	MemberPlanID *uint
	Amount       decimal.Decimal
	Description  string
	InvoiceDate  time.Time
}

func newInvoiceNo(date time.Time) string {
	return fmt.Sprintf("INV-%s-%s", date.Format("20060102"), utils.GenerateRandomString(6))
}

// centsAmount rounds to cents and rejects anything that does not survive as
// at least 0.01.
func centsAmount(field string, amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(2)
	if !rounded.IsPositive() {
		return decimal.Zero, &ValidationError{Field: field, Message: "must be at least 0.01"}
	}
	return rounded, nil
}

// ensureNotBilled fails when an invoice already bills the member plan.
func ensureNotBilled(tx *gorm.DB, memberPlanID uint) error {
	var count int64
	if err := tx.Model(&models.Invoice{}).Where("member_plan_id = ?", memberPlanID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		ruleRejections.WithLabelValues("plan_already_billed").Inc()
		return &ConflictError{Message: fmt.Sprintf("member plan %d is already billed", memberPlanID)}
	}
	return nil
}

// insertInvoice writes an unpaid invoice inside tx. Callers have already
// checked the member exists. A member plan is billed at most once.
func insertInvoice(tx *gorm.DB, memberID uint, memberPlanID *uint, amount decimal.Decimal, description string, date time.Time) (*models.Invoice, error) {
	amount, err := centsAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	if memberPlanID != nil {
		if err := ensureNotBilled(tx, *memberPlanID); err != nil {
			return nil, err
		}
	}
	for i := 0; i < invoiceNoAttempts; i++ {
		inv := models.Invoice{
			InvoiceNo:    newInvoiceNo(date),
			MemberID:     memberID,
			MemberPlanID: memberPlanID,
			InvoiceDate:  date,
			Amount:       amount,
			AmountPaid:   decimal.Zero,
			Description:  description,
			Status:       models.InvoiceUnpaid,
		}
		// A savepoint keeps the outer transaction usable on postgres after a
		// unique violation.
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&inv).Error
		})
		if err == nil {
			return &inv, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// The member plan index can also collide when two callers bill it at once.
		if memberPlanID != nil {
			if err := ensureNotBilled(tx, *memberPlanID); err != nil {
				return nil, err
			}
		}
	}
	return nil, &ConflictError{Message: "could not allocate an invoice number"}
}

func (s *BillingService) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*models.Invoice, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	amount, err := centsAmount("amount", input.Amount)
	if err != nil {
		return nil, err
	}
	date := input.InvoiceDate
	if date.IsZero() {
		date = s.now()
	}
	date = utils.DateOf(date)

	var invoice *models.Invoice
	err = s.store.Tx(ctx, "create_invoice", func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.First(&member, input.MemberID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "member", ID: input.MemberID}
			}
			return err
		}
		if input.MemberPlanID != nil {
			var mp models.MemberPlan
			if err := tx.Where("member_id = ?", input.MemberID).First(&mp, *input.MemberPlanID).Error; err != nil {
				if isNotFound(err) {
					return &NotFoundError{Entity: "member plan", ID: *input.MemberPlanID}
				}
				return err
			}
		}

		inv, err := insertInvoice(tx, input.MemberID, input.MemberPlanID, amount,
			strings.TrimSpace(input.Description), date)
		if err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"invoice_no": invoice.InvoiceNo,
		"member_id":  invoice.MemberID,
		"amount":     invoice.Amount.StringFixed(2),
	}).Info("invoice created")
	return invoice, nil
}

// CreatePlanInvoice bills an existing member plan at its plan price.
func (s *BillingService) CreatePlanInvoice(ctx context.Context, memberPlanID uint) (*models.Invoice, error) {
	var mp models.MemberPlan
	err := s.store.Read(ctx, "get_member_plan", func(db *gorm.DB) error {
		return db.Preload("Plan").First(&mp, memberPlanID).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Entity: "member plan", ID: memberPlanID}
		}
		return nil, err
	}

	id := mp.ID
	return s.CreateInvoice(ctx, CreateInvoiceInput{
		MemberID:     mp.MemberID,
		MemberPlanID: &id,
		Amount:       mp.Plan.Price,
		Description: fmt.Sprintf("%s plan %s to %s", mp.Plan.Name,
			utils.FormatDate(mp.StartDate), utils.FormatDate(mp.EndDate)),
		InvoiceDate: mp.StartDate,
	})
}

type RecordPaymentInput struct {
	InvoiceID  uint `validate:"required"`
	AmountPaid decimal.Decimal
	Method     models.PaymentMethod `validate:"omitempty,oneof=cash card upi bank_transfer other"`
	PaidAt     time.Time
	Note       string
}

// RecordPayment appends a payment and moves the invoice status forward in
// one transaction. The running total only advances through a conditional
// update, so two payments racing for the same balance cannot both land.
func (s *BillingService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, *models.Invoice, error) {
	if err := validateInput(input); err != nil {
		return nil, nil, err
	}
	amount, err := centsAmount("amountPaid", input.AmountPaid)
	if err != nil {
		return nil, nil, err
	}
	if input.Method == "" {
		input.Method = models.PaymentCash
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = s.now()
	}

	var payment models.Payment
	var invoice models.Invoice
	err = s.store.Tx(ctx, "record_payment", func(tx *gorm.DB) error {
		if err := tx.First(&invoice, input.InvoiceID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "invoice", ID: input.InvoiceID}
			}
			return err
		}

		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND ROUND(amount_paid + ?, 2) <= amount", invoice.ID, amount).
			UpdateColumn("amount_paid", gorm.Expr("ROUND(amount_paid + ?, 2)", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			ruleRejections.WithLabelValues("overpayment").Inc()
			return &OverpaymentError{
				InvoiceID:   invoice.ID,
				Amount:      invoice.Amount,
				AlreadyPaid: invoice.AmountPaid,
				Attempted:   amount,
			}
		}

		payment = models.Payment{
			InvoiceID:  invoice.ID,
			AmountPaid: amount,
			Method:     input.Method,
			PaidAt:     input.PaidAt,
			Note:       strings.TrimSpace(input.Note),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		if err := tx.First(&invoice, invoice.ID).Error; err != nil {
			return err
		}
		invoice.Status = models.InvoiceStatusFor(invoice.Amount, invoice.AmountPaid)
		return tx.Model(&invoice).UpdateColumn("status", invoice.Status).Error
	})
	if err != nil {
		return nil, nil, err
	}

	paymentsRecorded.WithLabelValues(string(payment.Method)).Inc()
	s.log.WithFields(logrus.Fields{
		"invoice_no": invoice.InvoiceNo,
		"amount":     amount.StringFixed(2),
		"status":     invoice.Status,
	}).Info("payment recorded")
	return &payment, &invoice, nil
}

// RecomputeInvoiceStatus rebuilds amount_paid and status from the payment
// rows. Running it twice changes nothing.
func (s *BillingService) RecomputeInvoiceStatus(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.store.Tx(ctx, "recompute_invoice", func(tx *gorm.DB) error {
		if err := tx.First(&invoice, invoiceID).Error; err != nil {
			if isNotFound(err) {
				return &NotFoundError{Entity: "invoice", ID: invoiceID}
			}
			return err
		}
		var payments []models.Payment
		if err := tx.Where("invoice_id = ?", invoiceID).Find(&payments).Error; err != nil {
			return err
		}

		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.AmountPaid)
		}
		invoice.AmountPaid = paid
		invoice.Status = models.InvoiceStatusFor(invoice.Amount, paid)
		return tx.Model(&invoice).UpdateColumns(map[string]interface{}{
			"amount_paid": invoice.AmountPaid,
			"status":      invoice.Status,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *BillingService) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.store.Read(ctx, "get_invoice", func(db *gorm.DB) error {
		return db.Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("paid_at ASC, id ASC")
		}).First(&invoice, id).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Entity: "invoice", ID: id}
		}
		return nil, err
	}
	return &invoice, nil
}

type InvoiceFilter struct {
	MemberID uint
	Status   models.InvoiceStatus
}

func (s *BillingService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.store.Read(ctx, "list_invoices", func(db *gorm.DB) error {
		query := db.Order("invoice_date DESC, id DESC")
		if filter.MemberID != 0 {
			query = query.Where("member_id = ?", filter.MemberID)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		return query.Find(&invoices).Error
	})
	return invoices, err
}

func (s *BillingService) ListPayments(ctx context.Context, invoiceID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.store.Read(ctx, "list_payments", func(db *gorm.DB) error {
		return db.Where("invoice_id = ?", invoiceID).Order("paid_at ASC, id ASC").Find(&payments).Error
	})
	return payments, err
}

// OutstandingBalance sums what the member still owes across open invoices.
func (s *BillingService) OutstandingBalance(ctx context.Context, memberID uint) (decimal.Decimal, error) {
	invoices, err := s.ListInvoices(ctx, InvoiceFilter{MemberID: memberID})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Status != models.InvoicePaid {
			total = total.Add(inv.Balance())
		}
	}
	return total, nil
}
