package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a referenced row that does not exist.
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// ConflictError reports a uniqueness or overlap violation that could not be
// resolved.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// QuotaExceededError is returned when a visit-based plan has no visits left.
type QuotaExceededError struct {
	MemberPlanID uint
	Entitled     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("member plan %d has used all %d entitled visits", e.MemberPlanID, e.Entitled)
}

// NoActivePlanError is returned when no member plan covers the visit date.
type NoActivePlanError struct {
	MemberID uint
	Date     time.Time
}

func (e *NoActivePlanError) Error() string {
	return fmt.Sprintf("member %d has no active plan on %s", e.MemberID, e.Date.Format("2006-01-02"))
}

// OverpaymentError is returned when a payment would take an invoice past its
// amount.
type OverpaymentError struct {
	InvoiceID   uint
	Amount      decimal.Decimal
	AlreadyPaid decimal.Decimal
	Attempted   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s on invoice %d exceeds balance %s",
		e.Attempted.StringFixed(2), e.InvoiceID, e.Amount.Sub(e.AlreadyPaid).StringFixed(2))
}

// StoreUnavailableError wraps a connectivity failure that persisted through
// every retry.
type StoreUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// validateInput runs struct tag validation and turns the first failure into
// a ValidationError.
func validateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: lowerFirst(fe.Field()), Message: describeTag(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
