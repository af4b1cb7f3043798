package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reportfox_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportfox_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportfox_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// PaymentInitiations counts initiation attempts by method and result.
	PaymentInitiations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportfox_payment_initiations_total",
			Help: "Payment initiations by method and result.",
		},
		[]string{"method", "result"},
	)

	// Confirmations counts ConfirmTransaction outcomes.
	Confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportfox_payment_confirmations_total",
			Help: "Payment confirmation outcomes.",
		},
		[]string{"outcome"},
	)

	StaleOrdersCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reportfox_stale_orders_cancelled_total",
		Help: "Pending orders cancelled by the sweeper.",
	})

	ReportViews = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reportfox_report_views_total",
		Help: "Secure viewer deliveries.",
	})

	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reportfox_watermark_render_seconds",
		Help:    "Time spent producing a watermarked copy.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportfox_rate_limited_total",
			Help: "Requests rejected by a rate limit rule.",
		},
		[]string{"rule"},
	)
)

var registerOnce sync.Once

// Init registers all collectors in the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			PaymentInitiations,
			Confirmations,
			StaleOrdersCancelled,
			ReportViews,
			RenderDuration,
			RateLimited,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies keyed by the matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpInFlight.Inc()
		start := time.Now()

		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpInFlight.Dec()
		return err
	}
}
