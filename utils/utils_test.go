package utils

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+919876543210", true},
		{"+91 98765-43210", true},
		{"(020) 7946.0018", false},
		{"9876543", true},
		{"+0123456789", false},
		{"12345", false},
		{"phone", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidatePhone(tt.phone), tt.phone)
	}
	assert.Equal(t, "+919876543210", NormalizePhone(" +91 (98765) 43210 "))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2025-03-01T23:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("  ")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDate("01/03/2025")
	assert.Error(t, err)
}

func TestDateHelpers(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2025, 3, 1, 23, 30, 0, 0, ist)

	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), DateOf(late))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, ist), BeginningOfDay(late))
	assert.Equal(t, 30, DaysBetween(late, time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-01", FormatDate(DateOf(late)))
}

func TestRandom(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{12}$`), GenerateRandomString(12))
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), GenerateOTP(6))
	assert.NotEqual(t, GenerateRandomString(16), GenerateRandomString(16))

	secret, err := base64.StdEncoding.DecodeString(GenerateJWTSecret())
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}

func TestPasswordHash(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("password123", hash))
	assert.False(t, CheckPasswordHash("password124", hash))
}

func TestToken(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, 42, "admin")
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "admin", claims.Role)

	_, err = ParseToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", -time.Minute, 42, "admin")
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.Error(t, err)

	_, err = GenerateToken("", time.Hour, 1, "admin")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware("secret"), func(c *gin.Context) {
		id, _ := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": c.GetString("role")})
	})
	r.GET("/admin", AuthMiddleware("secret"), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	staff, err := GenerateToken("secret", time.Hour, 7, "staff")
	require.NoError(t, err)
	admin, err := GenerateToken("secret", time.Hour, 1, "admin")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"garbage", "/me", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "/me", "Bearer " + staff, http.StatusOK},
		{"bare token", "/me", staff, http.StatusOK},
		{"staff on admin route", "/admin", "Bearer " + staff, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+staff)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"id":7,"role":"staff"}`, w.Body.String())
}
