package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "unpaid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

type Invoice struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	InvoiceNo string `gorm:"uniqueIndex;not null" json:"invoiceNo"`
	MemberID  uint   `gorm:"index;not null" json:"memberId"`
	// MemberPlanID is set when the invoice bills a plan purchase. A plan
	// purchase is billed once; manual invoices leave it NULL.
	MemberPlanID *uint     `gorm:"uniqueIndex:idx_invoices_member_plan_unique" json:"memberPlanId,omitempty"`
	InvoiceDate  time.Time `gorm:"not null;index" json:"invoiceDate"`

	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	AmountPaid  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amountPaid"`
	Description string          `json:"description"`
	Status      InvoiceStatus   `gorm:"type:varchar(20);not null;index" json:"status"`

	Payments []Payment `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InvoiceStatusFor derives the status from what is owed and what has been
// paid. It is the only place the mapping lives.
func InvoiceStatusFor(amount, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(amount) && amount.IsPositive():
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartiallyPaid
	default:
		return InvoiceUnpaid
	}
}

func (i Invoice) Balance() decimal.Decimal {
	return i.Amount.Sub(i.AmountPaid)
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOther        PaymentMethod = "other"
)

// Payment is append-only.
type Payment struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	InvoiceID  uint            `gorm:"index;not null" json:"invoiceId"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amountPaid"`
	Method     PaymentMethod   `gorm:"type:varchar(20);not null" json:"method"`
	PaidAt     time.Time       `gorm:"not null;index" json:"paidAt"`
	Note       string          `json:"note,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
