package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"membership-erp/services"
)

type DashboardController struct {
	dashboard *services.DashboardService
}

func NewDashboardController(dashboard *services.DashboardService) *DashboardController {
	return &DashboardController{dashboard: dashboard}
}

func (dc *DashboardController) GetDashboardOverview(c *gin.Context) {
	overview, err := dc.dashboard.Overview(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
