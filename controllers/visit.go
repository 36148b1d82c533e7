package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"membership-erp/services"
	"membership-erp/utils"
)

type VisitController struct {
	visits *services.VisitService
}

func NewVisitController(visits *services.VisitService) *VisitController {
	return &VisitController{visits: visits}
}

type RecordVisitInput struct {
	MemberID  uint   `json:"memberId" binding:"required"`
	VisitDate string `json:"visitDate"`
	HoursUsed int    `json:"hoursUsed"`
	Notes     string `json:"notes"`
}

type QRCheckInInput struct {
	Payload string `json:"payload" binding:"required"`
}

func (vc *VisitController) RecordVisit(c *gin.Context) {
	var input RecordVisitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	date, ok := parseDateField(c, "visitDate", input.VisitDate)
	if !ok {
		return
	}

	visit, err := vc.visits.RecordVisit(c.Request.Context(), services.RecordVisitInput{
		MemberID:  input.MemberID,
		VisitDate: date,
		HoursUsed: input.HoursUsed,
		Notes:     input.Notes,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"visit": visit})
}

func (vc *VisitController) CheckInQR(c *gin.Context) {
	var input QRCheckInInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	visit, member, err := vc.visits.CheckInByMembershipNo(c.Request.Context(), input.Payload)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"visit":        visit,
		"membershipNo": member.MembershipNo,
		"childName":    member.ChildName,
	})
}

// GetVisits supports ?memberId=, ?from=, ?to= and ?limit=.
func (vc *VisitController) GetVisits(c *gin.Context) {
	var filter services.VisitFilter
	if v := c.Query("memberId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "Invalid memberId")
			return
		}
		filter.MemberID = uint(id)
	}
	var ok bool
	if filter.From, ok = parseDateField(c, "from", c.Query("from")); !ok {
		return
	}
	if filter.To, ok = parseDateField(c, "to", c.Query("to")); !ok {
		return
	}
	filter.Limit = 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	visits, err := vc.visits.ListVisits(c.Request.Context(), filter)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visits": visits})
}
