package services

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestEncodeMemberQR(t *testing.T) {
	data, err := EncodeMemberQR("ZPHSI-0001", 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestDecodeQRPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"membership:ZPHSI-0001", "ZPHSI-0001", false},
		{"MEMBERSHIP: zphsi-0002 ", "ZPHSI-0002", false},
		{"zphsi-0003", "ZPHSI-0003", false},
		{"membership:", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := DecodeQRPayload(tt.payload)
			if tt.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCertificateService_Render(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "Zoë")
	p := f.visitPlan(t, 2, 30)
	mp := f.assign(t, m.ID, p.ID, today)
	plan := f.reloadPlan(t, mp.ID)
	plan.Plan = *p

	pdf, err := f.visits.certificates.Render(*m, plan)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Greater(t, len(pdf), 500)
}

func TestExportService_Workbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "A")
	f.member(t, "B")
	p := f.durationPlan(t, 30, 100)
	f.assign(t, m.ID, p.ID, today)
	_, err := f.visits.RecordVisit(ctx, RecordVisitInput{MemberID: m.ID, Notes: "first day"})
	require.NoError(t, err)
	inv := f.invoice(t, m.ID, "100")
	_, _, err = f.billing.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, AmountPaid: dec("25.50")})
	require.NoError(t, err)

	data, err := NewExportService(f.store).Workbook(ctx)
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"members", "plans", "member_plans", "visits", "invoices", "payments"}, book.GetSheetList())

	members, err := book.GetRows("members")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "Membership No", members[0][1])
	assert.Equal(t, "ZPHSI-0001", members[1][1])

	visits, err := book.GetRows("visits")
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "2025-03-10", visits[1][3])
	assert.Equal(t, "first day", visits[1][5])

	payments, err := book.GetRows("payments")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "25.5", payments[1][2])
	assert.Equal(t, "cash", payments[1][3])
}
