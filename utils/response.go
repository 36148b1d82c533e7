package utils

import "github.com/gin-gonic/gin"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: message})
}

func RespondWithDetails(c *gin.Context, code int, message, details string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: message, Details: details})
}
