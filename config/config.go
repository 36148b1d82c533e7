package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Auth       AuthConfig
	SMTP       SMTPConfig
	Twilio     TwilioConfig
	Redis      RedisConfig
	Membership MembershipConfig
	Reminder   ReminderConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	SecureCookies  bool
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	LogQueries      bool
}

type AuthConfig struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	AdminEmail    string
	AdminPassword string
	OTPTTL        time.Duration
	OTPMaxTries   int

	// OTPAutoRegister creates a staff account the first time an unknown
	// email address completes an OTP login.
	OTPAutoRegister bool
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	WhatsAppNumber string
}

func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != ""
}

type RedisConfig struct {
	URL string
}

type MembershipConfig struct {
	// CenterName is printed on certificates.
	CenterName    string
	NumberPrefix  string
	CreateRetries int
	// OverlapPolicy is "latest" or "reject".
	OverlapPolicy string
}

type ReminderConfig struct {
	Enabled   bool
	Cron      string
	DaysAhead int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
			SecureCookies:  getEnvBool("SECURE_COOKIES", true),
		},
		DB: DBConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			URL:             getEnv("DB_URL", ""),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			RetryAttempts:   getEnvInt("STORE_RETRY_ATTEMPTS", 3),
			LogQueries:      getEnvBool("DB_LOG_QUERIES", false),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			JWTExpiry:     time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			AdminEmail:    getEnv("ADMIN_EMAIL", "admin@local"),
			AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
			OTPTTL:        getEnvDuration("OTP_TTL", 10*time.Minute),
			OTPMaxTries:   getEnvInt("OTP_MAX_TRIES", 5),

			OTPAutoRegister: getEnvBool("OTP_AUTO_REGISTER", false),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("EMAIL_FROM", ""),
		},
		Twilio: TwilioConfig{
			AccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber:    getEnv("TWILIO_PHONE_NUMBER", ""),
			WhatsAppNumber: getEnv("TWILIO_WHATSAPP_NUMBER", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Membership: MembershipConfig{
			CenterName:    getEnv("CENTER_NAME", ""),
			NumberPrefix:  getEnv("MEMBERSHIP_PREFIX", "ZPHSI"),
			CreateRetries: getEnvInt("MEMBERSHIP_CREATE_RETRIES", 5),
			OverlapPolicy: getEnv("PLAN_OVERLAP_POLICY", "latest"),
		},
		Reminder: ReminderConfig{
			Enabled:   getEnvBool("REMINDERS_ENABLED", true),
			Cron:      getEnv("REMINDER_CRON", "0 9 * * *"),
			DaysAhead: getEnvInt("REMINDER_DAYS_AHEAD", 3),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.DB.Driver != "postgres" && c.DB.Driver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required (generate one with `membership-erp gen-secret`)")
	}
	if c.Membership.OverlapPolicy != "latest" && c.Membership.OverlapPolicy != "reject" {
		return fmt.Errorf("PLAN_OVERLAP_POLICY must be latest or reject, got %q", c.Membership.OverlapPolicy)
	}
	if c.Membership.CreateRetries < 1 {
		return fmt.Errorf("MEMBERSHIP_CREATE_RETRIES must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
