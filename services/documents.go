package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"membership-erp/models"
	"membership-erp/utils"
)

// QRPayloadPrefix is accepted in front of a membership number in scanned
// codes. Codes we print carry the bare number.
const QRPayloadPrefix = "membership:"

// EncodeMemberQR renders the member's check-in code as a PNG.
func EncodeMemberQR(membershipNo string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(membershipNo, qrcode.Medium, size)
}

// DecodeQRPayload extracts the membership number from scanned text.
func DecodeQRPayload(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if len(payload) >= len(QRPayloadPrefix) && strings.EqualFold(payload[:len(QRPayloadPrefix)], QRPayloadPrefix) {
		payload = strings.TrimSpace(payload[len(QRPayloadPrefix):])
	}
	if payload == "" {
		return "", &ValidationError{Field: "payload", Message: "is required"}
	}
	return strings.ToUpper(payload), nil
}

// CertificateService renders completion certificates.
type CertificateService struct {
	centerName string
	now        func() time.Time
}

func NewCertificateService(centerName string) *CertificateService {
	return &CertificateService{centerName: centerName, now: time.Now}
}

func (c *CertificateService) Render(member models.Member, plan models.MemberPlan) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Certificate of Completion", true)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(15, 76, 129)
	pdf.Rect(10, 10, 190, 277, "D")

	pdf.Ln(40)
	if c.centerName != "" {
		pdf.SetFont("Helvetica", "", 14)
		pdf.CellFormat(0, 10, tr(c.centerName), "", 1, "C", false, 0, "")
		pdf.Ln(6)
	}

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(15, 76, 129)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.Ln(12)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 10, tr("Presented to: "+member.ChildName), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Parent: " + member.ParentName,
		"Membership No: " + member.MembershipNo,
	}
	if plan.Plan.Name != "" {
		lines = append(lines, fmt.Sprintf("Plan: %s (%d visits)", plan.Plan.Name, plan.VisitsUsed))
	}
	lines = append(lines, "Date: "+utils.FormatDate(c.now()))
	for _, line := range lines {
		pdf.CellFormat(0, 9, tr(line), "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportService builds the spreadsheet of all membership data.
type ExportService struct {
	store *Store
}

func NewExportService(store *Store) *ExportService {
	return &ExportService{store: store}
}

type exportSheet struct {
	name    string
	headers []interface{}
	rows    [][]interface{}
}

// Workbook returns an xlsx file with one sheet per table.
func (e *ExportService) Workbook(ctx context.Context) ([]byte, error) {
	var (
		members  []models.Member
		plans    []models.Plan
		assigned []models.MemberPlan
		visits   []models.Visit
		invoices []models.Invoice
		payments []models.Payment
	)
	err := e.store.Read(ctx, "export", func(db *gorm.DB) error {
		if err := db.Order("membership_no").Find(&members).Error; err != nil {
			return err
		}
		if err := db.Order("id").Find(&plans).Error; err != nil {
			return err
		}
		if err := db.Order("id").Find(&assigned).Error; err != nil {
			return err
		}
		if err := db.Order("visit_date, id").Find(&visits).Error; err != nil {
			return err
		}
		if err := db.Order("invoice_date, id").Find(&invoices).Error; err != nil {
			return err
		}
		return db.Order("paid_at, id").Find(&payments).Error
	})
	if err != nil {
		return nil, err
	}

	sheets := []exportSheet{
		{name: "members", headers: []interface{}{"ID", "Membership No", "Parent Name", "Phone", "Child Name", "Child DOB", "Parent Email", "Member Since"}},
		{name: "plans", headers: []interface{}{"ID", "Name", "Kind", "Price", "Duration Days", "Entitled Visits", "Per Visit Hours", "Validity Days", "Active"}},
		{name: "member_plans", headers: []interface{}{"ID", "Member ID", "Plan ID", "Start Date", "End Date", "Visits Used", "Entitled Visits"}},
		{name: "visits", headers: []interface{}{"ID", "Member ID", "Member Plan ID", "Visit Date", "Hours Used", "Notes"}},
		{name: "invoices", headers: []interface{}{"ID", "Invoice No", "Member ID", "Invoice Date", "Amount", "Amount Paid", "Status", "Description"}},
		{name: "payments", headers: []interface{}{"ID", "Invoice ID", "Amount Paid", "Method", "Paid At", "Note"}},
	}
	for _, m := range members {
		dob := ""
		if m.ChildDOB != nil {
			dob = utils.FormatDate(*m.ChildDOB)
		}
		sheets[0].rows = append(sheets[0].rows, []interface{}{m.ID, m.MembershipNo, m.ParentName, m.Phone, m.ChildName, dob, m.ParentEmail, utils.FormatDate(m.MemberSince)})
	}
	for _, p := range plans {
		sheets[1].rows = append(sheets[1].rows, []interface{}{p.ID, p.Name, string(p.Kind), p.Price.InexactFloat64(), p.DurationDays, optionalInt(p.EntitledVisits), p.PerVisitHours, p.ValidityDays, p.IsActive})
	}
	for _, mp := range assigned {
		sheets[2].rows = append(sheets[2].rows, []interface{}{mp.ID, mp.MemberID, mp.PlanID, utils.FormatDate(mp.StartDate), utils.FormatDate(mp.EndDate), mp.VisitsUsed, optionalInt(mp.EntitledVisits)})
	}
	for _, v := range visits {
		sheets[3].rows = append(sheets[3].rows, []interface{}{v.ID, v.MemberID, v.MemberPlanID, utils.FormatDate(v.VisitDate), v.HoursUsed, v.Notes})
	}
	for _, inv := range invoices {
		sheets[4].rows = append(sheets[4].rows, []interface{}{inv.ID, inv.InvoiceNo, inv.MemberID, utils.FormatDate(inv.InvoiceDate), inv.Amount.InexactFloat64(), inv.AmountPaid.InexactFloat64(), string(inv.Status), inv.Description})
	}
	for _, p := range payments {
		sheets[5].rows = append(sheets[5].rows, []interface{}{p.ID, p.InvoiceID, p.AmountPaid.InexactFloat64(), string(p.Method), p.PaidAt.Format(time.RFC3339), p.Note})
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet.name, "A1", &sheet.headers); err != nil {
			return nil, err
		}
		for r, row := range sheet.rows {
			row := row
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(sheet.name, cell, &row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
