package services

import "github.com/prometheus/client_golang/prometheus"

var (
	membersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "membership_members_created_total",
		Help: "Members created",
	})
	membershipNoCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "membership_number_collisions_total",
		Help: "Membership number unique violations that triggered a retry",
	})
	plansAssigned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_plans_assigned_total",
		Help: "Plans assigned to members",
	}, []string{"kind"})
	visitsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "membership_visits_recorded_total",
		Help: "Visits recorded",
	})
	paymentsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_payments_recorded_total",
		Help: "Payments recorded by method",
	}, []string{"method"})
	ruleRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_rule_rejections_total",
		Help: "Operations rejected by a business rule",
	}, []string{"rule"})
	storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_store_unavailable_total",
		Help: "Operations that failed after exhausting store retries",
	}, []string{"op"})
	notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_notifications_total",
		Help: "Notifications dispatched by channel and status",
	}, []string{"channel", "status"})
)

func init() {
	prometheus.MustRegister(
		membersCreated,
		membershipNoCollisions,
		plansAssigned,
		visitsRecorded,
		paymentsRecorded,
		ruleRejections,
		storeErrors,
		notificationsSent,
	)
}
