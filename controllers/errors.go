package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"membership-erp/services"
	"membership-erp/utils"
)

// respondWithServiceError maps service errors onto status codes. Anything
// unrecognised is logged and hidden behind a 500.
func respondWithServiceError(c *gin.Context, err error) {
	var (
		validation  *services.ValidationError
		notFound    *services.NotFoundError
		conflict    *services.ConflictError
		quota       *services.QuotaExceededError
		noPlan      *services.NoActivePlanError
		overpay     *services.OverpaymentError
		unavailable *services.StoreUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		respondWithCode(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &notFound):
		respondWithCode(c, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &conflict):
		respondWithCode(c, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &quota):
		respondWithCode(c, http.StatusUnprocessableEntity, "quota_exceeded", err.Error())
	case errors.As(err, &noPlan):
		respondWithCode(c, http.StatusUnprocessableEntity, "no_active_plan", err.Error())
	case errors.As(err, &overpay):
		respondWithCode(c, http.StatusUnprocessableEntity, "overpayment", err.Error())
	case errors.As(err, &unavailable):
		logrus.WithError(err).WithField("requestId", c.GetString("requestId")).Error("store unavailable")
		respondWithCode(c, http.StatusServiceUnavailable, "store_unavailable", "Service temporarily unavailable")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondWithCode(c, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"requestId": c.GetString("requestId"),
			"path":      c.FullPath(),
		}).Error("request failed")
		respondWithCode(c, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

func respondWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// parseID reads a numeric path parameter, answering 400 itself when it is
// malformed.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parseDateField(c *gin.Context, field, value string) (time.Time, bool) {
	t, err := utils.ParseDate(value)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid "+field+": expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
