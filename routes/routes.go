package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"membership-erp/config"
	"membership-erp/controllers"
	"membership-erp/models"
	"membership-erp/utils"
)

// Handlers bundles the controllers the router mounts.
type Handlers struct {
	Auth      *controllers.AuthController
	Members   *controllers.MemberController
	Plans     *controllers.PlanController
	Visits    *controllers.VisitController
	Invoices  *controllers.InvoiceController
	Documents *controllers.DocumentController
	Settings  *controllers.SettingsController
	Dashboard *controllers.DashboardController
}

func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	allowed := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		allowed[origin] = true
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin]
		},
	}))

	r.Use(config.PerformanceLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := utils.AuthMiddleware(cfg.Auth.JWTSecret)
	adminOnly := utils.RequireRole(models.RoleAdmin)

	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/logout", h.Auth.Logout)
		auth.POST("/otp/request", h.Auth.RequestOTP)
		auth.POST("/otp/verify", h.Auth.VerifyOTP)

		auth.GET("/me", requireAuth, h.Auth.Me)
	}

	api := r.Group("/api")
	api.Use(requireAuth)
	{
		// Member routes
		members := api.Group("/members")
		{
			members.POST("", h.Members.CreateMember)
			members.GET("", h.Members.GetMembers)
			members.GET("/count", h.Members.GetMemberCount)
			members.GET("/:id", h.Members.GetMember)
			members.PUT("/:id", h.Members.UpdateMember)
			members.DELETE("/:id", adminOnly, h.Members.DeleteMember)

			members.POST("/:id/plans", h.Members.AssignPlan)
			members.GET("/:id/plans", h.Members.GetMemberPlans)
			members.GET("/:id/active-plan", h.Members.GetActivePlan)
			members.GET("/:id/balance", h.Members.GetBalance)

			members.GET("/:id/qr", h.Documents.GetMemberQR)
			members.GET("/:id/certificate", h.Documents.GetCertificate)
		}

		// Plan catalogue
		plans := api.Group("/plans")
		{
			plans.GET("", h.Plans.GetPlans)
			plans.GET("/:id", h.Plans.GetPlan)
			plans.POST("", adminOnly, h.Plans.CreatePlan)
			plans.DELETE("/:id", adminOnly, h.Plans.DeactivatePlan)
		}

		api.POST("/member-plans/:id/invoice", h.Invoices.BillMemberPlan)

		// Visits
		api.POST("/visits", h.Visits.RecordVisit)
		api.GET("/visits", h.Visits.GetVisits)
		api.POST("/checkin/qr", h.Visits.CheckInQR)

		// Invoice routes
		invoices := api.Group("/invoices")
		{
			invoices.POST("", h.Invoices.CreateInvoice)
			invoices.GET("", h.Invoices.GetInvoices)
			invoices.GET("/:id", h.Invoices.GetInvoice)
			invoices.POST("/:id/payments", h.Invoices.RecordPayment)
			invoices.GET("/:id/payments", h.Invoices.GetPayments)
			invoices.POST("/:id/recompute", adminOnly, h.Invoices.RecomputeStatus)
		}

		// Dashboard routes
		api.GET("/dashboard", h.Dashboard.GetDashboardOverview)

		// Admin
		admin := api.Group("", adminOnly)
		{
			admin.GET("/users", h.Auth.ListUsers)
			admin.POST("/users", h.Auth.CreateUser)

			admin.GET("/settings", h.Settings.GetSettings)
			admin.PUT("/settings", h.Settings.UpdateSettings)
			admin.POST("/settings/test-email", h.Settings.SendTestEmail)

			admin.GET("/export", h.Documents.Export)
			admin.POST("/export/email", h.Documents.EmailExport)
		}
	}

	return r
}
