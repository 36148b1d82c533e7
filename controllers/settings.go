package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"membership-erp/services"
	"membership-erp/utils"
)

type SettingsController struct {
	settings *services.SettingsService
	notifier *services.DispatchNotifier
}

func NewSettingsController(settings *services.SettingsService, notifier *services.DispatchNotifier) *SettingsController {
	return &SettingsController{settings: settings, notifier: notifier}
}

type TestEmailInput struct {
	To string `json:"to" binding:"required,email"`
}

func (sc *SettingsController) GetSettings(c *gin.Context) {
	settings, err := sc.settings.All(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (sc *SettingsController) UpdateSettings(c *gin.Context) {
	var input map[string]string
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	if err := sc.settings.Update(c.Request.Context(), input); err != nil {
		respondWithServiceError(c, err)
		return
	}
	sc.GetSettings(c)
}

// SendTestEmail sends synchronously so the admin sees SMTP errors directly.
func (sc *SettingsController) SendTestEmail(c *gin.Context) {
	var input TestEmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	err := sc.notifier.Deliver(c.Request.Context(), services.Notification{
		Kind:      services.KindTest,
		Channel:   services.ChannelEmail,
		Recipient: input.To,
		Subject:   "Test email",
		Body:      "SMTP settings are working.",
	})
	if err != nil {
		utils.RespondWithDetails(c, http.StatusBadGateway, "Failed to send test email", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test email sent"})
}
