package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis command failures by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusmarket_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})

	// ListingOperations counts marketplace mutations by action and outcome.
	ListingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusmarket_listing_operations_total",
		Help: "Total number of listing create/update/delete operations",
	}, []string{"action", "outcome"})

	// UploadedImageBytes tracks the size of stored listing images.
	UploadedImageBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campusmarket_uploaded_image_bytes",
		Help:    "Size distribution of uploaded listing images",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// InitMetrics creates the Prometheus middleware for the given service name.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}

// MetricsMiddleware returns the Fiber handler that records HTTP metrics.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
