package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_ai_requests_total",
			Help: "AI orchestration and chat requests by mode and outcome",
		},
		[]string{"mode", "outcome"}, // command|insight|chat , ok|invalid|llm_error
	)

	OAuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_oauth_total",
			Help: "OAuth connect and callback results by provider",
		},
		[]string{"provider", "outcome"}, // started|connected|<error code>|refreshed|refresh_failed
	)

	BillingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_billing_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"}, // handled|ignored|duplicate|failed
	)

	ImageGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_image_generations_total",
			Help: "Image generation attempts by outcome",
		},
		[]string{"outcome"}, // ok|quota_exceeded|failed
	)

	DataSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_datasync_total",
			Help: "Data sync jobs by provider and outcome",
		},
		[]string{"provider", "outcome"}, // queued|ready|failed|breaker_open
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		AIRequestsTotal,
		OAuthTotal,
		BillingEventsTotal,
		ImageGenerationsTotal,
		DataSyncTotal,
	)
}
