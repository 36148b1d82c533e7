package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"membership-erp/models"
	"membership-erp/services"
	"membership-erp/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DocumentController serves QR codes, certificates and the data export.
type DocumentController struct {
	members      *services.MembershipService
	certificates *services.CertificateService
	export       *services.ExportService
	auth         *services.AuthService
	notifier     *services.DispatchNotifier
}

func NewDocumentController(
	members *services.MembershipService,
	certificates *services.CertificateService,
	export *services.ExportService,
	auth *services.AuthService,
	notifier *services.DispatchNotifier,
) *DocumentController {
	return &DocumentController{
		members:      members,
		certificates: certificates,
		export:       export,
		auth:         auth,
		notifier:     notifier,
	}
}

// GetMemberQR returns a PNG; ?size= sets the edge in pixels.
func (dc *DocumentController) GetMemberQR(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	member, err := dc.members.GetMember(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	size := 256
	if v := c.Query("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	png, err := services.EncodeMemberQR(member.MembershipNo, size)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (dc *DocumentController) GetCertificate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	member, err := dc.members.GetMember(ctx, id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	plans, err := dc.members.ListMemberPlans(ctx, id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	var plan models.MemberPlan
	for _, mp := range plans {
		if mp.QuotaExhausted() {
			plan = mp
			break
		}
	}

	pdf, err := dc.certificates.Render(*member, plan)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificate_%s.pdf"`, member.MembershipNo))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (dc *DocumentController) Export(c *gin.Context) {
	data, err := dc.export.Workbook(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="membership_export.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// EmailExport mails the workbook to the signed-in admin.
func (dc *DocumentController) EmailExport(c *gin.Context) {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "User ID not found in context")
		return
	}
	ctx := c.Request.Context()
	user, err := dc.auth.GetUser(ctx, userID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	data, err := dc.export.Workbook(ctx)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	err = dc.notifier.Deliver(ctx, services.Notification{
		Kind:      services.KindExport,
		Channel:   services.ChannelEmail,
		Recipient: user.Email,
		Subject:   "Membership Export",
		Body:      "Attached is the exported data.",
		Attachments: []services.Attachment{{
			Filename:    fmt.Sprintf("membership_export_%s.xlsx", time.Now().Format("20060102")),
			ContentType: xlsxContentType,
			Data:        data,
		}},
	})
	if err != nil {
		utils.RespondWithDetails(c, http.StatusBadGateway, "Failed to email export", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Export sent to " + user.Email})
}
