// controllers/invoice.go
package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"membership-erp/models"
	"membership-erp/services"
	"membership-erp/utils"
)

type InvoiceController struct {
	billing *services.BillingService
}

func NewInvoiceController(billing *services.BillingService) *InvoiceController {
	return &InvoiceController{billing: billing}
}

// CreateInvoiceInput defines the expected JSON structure for creating an invoice
type CreateInvoiceInput struct {
	MemberID     uint            `json:"memberId" binding:"required"`
	MemberPlanID *uint           `json:"memberPlanId"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	InvoiceDate  string          `json:"invoiceDate"`
}

type RecordPaymentInput struct {
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Method     string          `json:"method" binding:"omitempty,oneof=cash card upi bank_transfer other"`
	PaidAt     string          `json:"paidAt"`
	Note       string          `json:"note"`
}

func (ic *InvoiceController) CreateInvoice(c *gin.Context) {
	var input CreateInvoiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	date, ok := parseDateField(c, "invoiceDate", input.InvoiceDate)
	if !ok {
		return
	}

	invoice, err := ic.billing.CreateInvoice(c.Request.Context(), services.CreateInvoiceInput{
		MemberID:     input.MemberID,
		MemberPlanID: input.MemberPlanID,
		Amount:       input.Amount,
		Description:  input.Description,
		InvoiceDate:  date,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

// BillMemberPlan invoices a member plan at its plan price.
func (ic *InvoiceController) BillMemberPlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := ic.billing.CreatePlanInvoice(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

// GetInvoices supports ?memberId= and ?status=.
func (ic *InvoiceController) GetInvoices(c *gin.Context) {
	var filter services.InvoiceFilter
	if v := c.Query("memberId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "Invalid memberId")
			return
		}
		filter.MemberID = uint(id)
	}
	switch status := models.InvoiceStatus(c.Query("status")); status {
	case "", models.InvoiceUnpaid, models.InvoicePartiallyPaid, models.InvoicePaid:
		filter.Status = status
	default:
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid status")
		return
	}

	invoices, err := ic.billing.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (ic *InvoiceController) GetInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := ic.billing.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice, "balance": invoice.Balance()})
}

func (ic *InvoiceController) RecordPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input RecordPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	paidAt, ok := parseDateField(c, "paidAt", input.PaidAt)
	if !ok {
		return
	}

	payment, invoice, err := ic.billing.RecordPayment(c.Request.Context(), services.RecordPaymentInput{
		InvoiceID:  id,
		AmountPaid: input.AmountPaid,
		Method:     models.PaymentMethod(input.Method),
		PaidAt:     paidAt,
		Note:       input.Note,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": payment, "invoice": invoice})
}

func (ic *InvoiceController) GetPayments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	payments, err := ic.billing.ListPayments(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// RecomputeStatus rebuilds the paid total from payment rows. Admin only.
func (ic *InvoiceController) RecomputeStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := ic.billing.RecomputeInvoiceStatus(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}
