// controllers/member.go
package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"membership-erp/services"
	"membership-erp/utils"
)

type MemberController struct {
	members *services.MembershipService
	billing *services.BillingService
}

func NewMemberController(members *services.MembershipService, billing *services.BillingService) *MemberController {
	return &MemberController{members: members, billing: billing}
}

// CreateMemberInput defines the expected JSON structure for registering a member
type CreateMemberInput struct {
	ParentName  string `json:"parentName" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
	ChildName   string `json:"childName" binding:"required"`
	ChildDOB    string `json:"childDob"` // YYYY-MM-DD
	ParentEmail string `json:"parentEmail"`
}

// UpdateMemberInput defines the expected JSON structure for updating a member
type UpdateMemberInput struct {
	ParentName  *string `json:"parentName"`
	Phone       *string `json:"phone"`
	ChildName   *string `json:"childName"`
	ChildDOB    *string `json:"childDob"`
	ParentEmail *string `json:"parentEmail"`
}

type AssignPlanInput struct {
	PlanID    uint   `json:"planId" binding:"required"`
	StartDate string `json:"startDate"`
	// Bill creates an invoice for the plan price alongside the assignment.
	Bill bool `json:"bill"`
}

func optionalDate(c *gin.Context, field, value string) (*time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return nil, true
	}
	t, ok := parseDateField(c, field, value)
	if !ok {
		return nil, false
	}
	return &t, true
}

func (mc *MemberController) CreateMember(c *gin.Context) {
	var input CreateMemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	dob, ok := optionalDate(c, "childDob", input.ChildDOB)
	if !ok {
		return
	}

	member, err := mc.members.CreateMember(c.Request.Context(), services.CreateMemberInput{
		ParentName:  input.ParentName,
		Phone:       input.Phone,
		ChildName:   input.ChildName,
		ChildDOB:    dob,
		ParentEmail: input.ParentEmail,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

// GetMembers lists members. ?q= filters by name, phone or membership number;
// ?membershipNo= and ?phone= return the single exact match.
func (mc *MemberController) GetMembers(c *gin.Context) {
	ctx := c.Request.Context()

	if no := c.Query("membershipNo"); no != "" {
		member, err := mc.members.GetMemberByMembershipNo(ctx, no)
		if err != nil {
			respondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": []interface{}{member}})
		return
	}
	if phone := c.Query("phone"); phone != "" {
		member, err := mc.members.GetMemberByPhone(ctx, phone)
		if err != nil {
			respondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": []interface{}{member}})
		return
	}

	members, err := mc.members.ListMembers(ctx, c.Query("q"))
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

func (mc *MemberController) GetMemberCount(c *gin.Context) {
	count, err := mc.members.GetMemberCount(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetMember returns the lookup summary: member, active plan, remaining
// visits and recent visits.
func (mc *MemberController) GetMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	summary, err := mc.members.Summary(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (mc *MemberController) UpdateMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input UpdateMemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	update := services.UpdateMemberInput{
		ParentName:  input.ParentName,
		Phone:       input.Phone,
		ChildName:   input.ChildName,
		ParentEmail: input.ParentEmail,
	}
	if input.ChildDOB != nil {
		if update.ChildDOB, ok = optionalDate(c, "childDob", *input.ChildDOB); !ok {
			return
		}
	}

	member, err := mc.members.UpdateMember(c.Request.Context(), id, update)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (mc *MemberController) DeleteMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := mc.members.DeleteMember(c.Request.Context(), id); err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member deleted successfully"})
}

func (mc *MemberController) AssignPlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input AssignPlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	start, ok := parseDateField(c, "startDate", input.StartDate)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if input.Bill {
		mp, invoice, err := mc.members.AssignPlanWithInvoice(ctx, id, input.PlanID, start)
		if err != nil {
			respondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"memberPlan": mp, "invoice": invoice})
		return
	}

	mp, err := mc.members.AssignPlan(ctx, id, input.PlanID, start)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"memberPlan": mp})
}

func (mc *MemberController) GetMemberPlans(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	plans, err := mc.members.ListMemberPlans(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberPlans": plans})
}

// GetActivePlan answers which plan a check-in on ?date= (default today)
// would use.
func (mc *MemberController) GetActivePlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	day, ok := parseDateField(c, "date", c.Query("date"))
	if !ok {
		return
	}
	if day.IsZero() {
		day = time.Now()
	}
	mp, err := mc.members.ActivePlan(c.Request.Context(), id, day)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberPlan": mp, "visitsRemaining": mp.VisitsRemaining()})
}

func (mc *MemberController) GetBalance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := mc.members.GetMember(c.Request.Context(), id); err != nil {
		respondWithServiceError(c, err)
		return
	}
	balance, err := mc.billing.OutstandingBalance(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberId": id, "outstanding": balance})
}
