package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"membership-erp/config"
	"membership-erp/controllers"
	"membership-erp/routes"
	"membership-erp/services"
	"membership-erp/utils"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gen-secret" {
		fmt.Println(utils.GenerateJWTSecret())
		return
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	cfg := config.Load()
	log := config.NewLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	db, err := config.ConnectDB(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := config.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	store := services.NewStore(db, cfg.DB.RetryAttempts)

	var otpStore services.OTPStore
	if cfg.Redis.URL != "" {
		redisStore, err := services.NewRedisOTPStore(cfg.Redis.URL, cfg.Auth.OTPTTL, cfg.Auth.OTPMaxTries)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisStore.Close()
		otpStore = redisStore
		log.Info("Redis connection established")
	} else {
		otpStore = services.NewMemoryOTPStore(cfg.Auth.OTPTTL, cfg.Auth.OTPMaxTries)
		log.Warn("REDIS_URL not set, keeping OTP codes in memory")
	}

	settings := services.NewSettingsService(store)
	email := services.NewEmailService(settings, cfg.SMTP)
	sms := services.NewSMSService(cfg.Twilio)
	if sms == nil {
		log.Warn("Twilio credentials not set, SMS and WhatsApp are disabled")
	}
	notifier := services.NewDispatchNotifier(store, email, sms, log)

	members := services.NewMembershipService(store, services.MembershipOptions{
		NumberPrefix:  cfg.Membership.NumberPrefix,
		CreateRetries: cfg.Membership.CreateRetries,
		OverlapPolicy: cfg.Membership.OverlapPolicy,
	}, log)
	certificates := services.NewCertificateService(cfg.Membership.CenterName)
	visits := services.NewVisitService(store, notifier, certificates, log)
	billing := services.NewBillingService(store, log)
	auth := services.NewAuthService(store, otpStore, email, sms, services.AuthOptions{
		JWTSecret:    cfg.Auth.JWTSecret,
		JWTExpiry:    cfg.Auth.JWTExpiry,
		OTPTTL:       cfg.Auth.OTPTTL,
		AutoRegister: cfg.Auth.OTPAutoRegister,
	}, log)

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := auth.EnsureAdmin(seedCtx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		cancel()
		log.WithError(err).Fatal("Failed to seed admin user")
	}
	cancel()

	var scheduler *cron.Cron
	if cfg.Reminder.Enabled {
		reminders := services.NewReminderService(store, notifier, cfg.Reminder.DaysAhead, log)
		if scheduler, err = reminders.StartScheduler(cfg.Reminder.Cron); err != nil {
			log.WithError(err).Fatal("Failed to start reminder scheduler")
		}
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := routes.SetupRouter(cfg, routes.Handlers{
		Auth:      controllers.NewAuthController(auth, cfg.Auth.JWTExpiry, cfg.Server.SecureCookies),
		Members:   controllers.NewMemberController(members, billing),
		Plans:     controllers.NewPlanController(members),
		Visits:    controllers.NewVisitController(visits),
		Invoices:  controllers.NewInvoiceController(billing),
		Documents: controllers.NewDocumentController(members, certificates, services.NewExportService(store), auth, notifier),
		Settings:  controllers.NewSettingsController(settings, notifier),
		Dashboard: controllers.NewDashboardController(services.NewDashboardService(store)),
	})
	if log.IsLevelEnabled(logrus.DebugLevel) {
		printRoutes(r)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	notifier.Wait()
}

func printRoutes(r *gin.Engine) {
	routes := r.Routes()
	for _, route := range routes {
		fmt.Printf("%-6s %s\n", route.Method, route.Path)
	}
}
