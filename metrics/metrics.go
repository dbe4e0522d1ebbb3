package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freeimages", Name: "uploads_total", Help: "Upload requests by strategy and result."},
		[]string{"strategy", "result"},
	)
	ConfigUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freeimages", Name: "config_updates_total", Help: "Configuration update requests by result."},
		[]string{"result"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freeimages", Name: "login_attempts_total", Help: "Admin login attempts by result."},
		[]string{"result"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freeimages", Name: "rate_limit_rejected_total", Help: "Requests rejected by a rate limiter."},
		[]string{"limiter"},
	)
	ImageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freeimages", Name: "image_requests_total", Help: "Optimized image requests by source and cache outcome."},
		[]string{"source", "cache"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Uploads)
	reg.MustRegister(ConfigUpdates)
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ImageRequests)
}
