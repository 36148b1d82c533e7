package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"membership-erp/models"
	"membership-erp/services"
	"membership-erp/utils"
)

type PlanController struct {
	members *services.MembershipService
}

func NewPlanController(members *services.MembershipService) *PlanController {
	return &PlanController{members: members}
}

type CreatePlanInput struct {
	Name           string          `json:"name" binding:"required"`
	Kind           models.PlanKind `json:"kind" binding:"required,oneof=duration visits"`
	Price          decimal.Decimal `json:"price"`
	DurationDays   int             `json:"durationDays"`
	EntitledVisits *int            `json:"entitledVisits"`
	PerVisitHours  int             `json:"perVisitHours"`
	ValidityDays   int             `json:"validityDays"`
}

func (pc *PlanController) CreatePlan(c *gin.Context) {
	var input CreatePlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	plan, err := pc.members.CreatePlan(c.Request.Context(), services.CreatePlanInput{
		Name:           input.Name,
		Kind:           input.Kind,
		Price:          input.Price,
		DurationDays:   input.DurationDays,
		EntitledVisits: input.EntitledVisits,
		PerVisitHours:  input.PerVisitHours,
		ValidityDays:   input.ValidityDays,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": plan})
}

// GetPlans lists active plans; ?all=true includes deactivated ones.
func (pc *PlanController) GetPlans(c *gin.Context) {
	plans, err := pc.members.ListPlans(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (pc *PlanController) GetPlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	plan, err := pc.members.GetPlan(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (pc *PlanController) DeactivatePlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := pc.members.DeactivatePlan(c.Request.Context(), id); err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plan deactivated"})
}
