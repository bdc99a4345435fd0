package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the handful of flows worth watching in production. Registered
// on the default registry and served by promhttp on /metrics.
var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_bookings_created_total",
		Help: "Demo bookings successfully created.",
	})

	BookingConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_booking_conflicts_total",
		Help: "Booking attempts rejected because the slot was full.",
	})

	LeadsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_leads_created_total",
		Help: "Leads created, labelled by score band.",
	}, []string{"band"})

	ThreatFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_threat_fetches_total",
		Help: "Threat intel fetches by source and outcome.",
	}, []string{"source", "outcome"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_crm_deliveries_total",
		Help: "Outbound CRM deliveries by status.",
	}, []string{"status"})

	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_notification_deliveries_total",
		Help: "Booking notification deliveries by status.",
	}, []string{"status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by route pattern and status class.",
	}, []string{"route", "status"})
)
