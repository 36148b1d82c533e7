package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"membership-erp/models"
	"membership-erp/services"
	"membership-erp/utils"
)

type AuthController struct {
	auth         *services.AuthService
	expiry       time.Duration
	secureCookie bool
}

func NewAuthController(auth *services.AuthService, expiry time.Duration, secureCookie bool) *AuthController {
	return &AuthController{auth: auth, expiry: expiry, secureCookie: secureCookie}
}

type LoginInput struct {
	Identifier string `json:"identifier" binding:"required"` // Can be email or phone
	Password   string `json:"password" binding:"required"`
}

type OTPRequestInput struct {
	Identifier string `json:"identifier" binding:"required"`
}

type OTPVerifyInput struct {
	Identifier string `json:"identifier" binding:"required"`
	Code       string `json:"code" binding:"required,len=6,numeric"`
}

type CreateUserInput struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=admin staff"`
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"phone": user.Phone,
		"role":  user.Role,
	}
}

func (ac *AuthController) respondWithSession(c *gin.Context, user *models.User, token string) {
	c.SetCookie(
		"token",
		token,
		int(ac.expiry.Seconds()),
		"/",
		"",
		ac.secureCookie,
		true,
	)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userResponse(user),
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input")
		return
	}

	user, token, err := ac.auth.Login(c.Request.Context(), input.Identifier, input.Password)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	ac.respondWithSession(c, user, token)
}

func (ac *AuthController) RequestOTP(c *gin.Context) {
	var input OTPRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	if err := ac.auth.RequestOTP(c.Request.Context(), input.Identifier); err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Code sent"})
}

func (ac *AuthController) VerifyOTP(c *gin.Context) {
	var input OTPVerifyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	user, token, err := ac.auth.VerifyOTP(c.Request.Context(), input.Identifier, input.Code)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	ac.respondWithSession(c, user, token)
}

func (ac *AuthController) Logout(c *gin.Context) {
	c.SetCookie("token", "", -1, "/", "", ac.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (ac *AuthController) Me(c *gin.Context) {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	user, err := ac.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}

// CreateUser adds a staff or admin account. Admin only.
func (ac *AuthController) CreateUser(c *gin.Context) {
	var input CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	user, err := ac.auth.CreateUser(c.Request.Context(), services.CreateUserInput{
		Email:    input.Email,
		Name:     input.Name,
		Phone:    input.Phone,
		Password: input.Password,
		Role:     input.Role,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": userResponse(user)})
}

func (ac *AuthController) ListUsers(c *gin.Context) {
	users, err := ac.auth.ListUsers(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
