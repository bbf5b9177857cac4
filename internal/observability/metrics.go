package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket events by type.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	spamRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_spam_rejections_total",
			Help: "Messages rejected by the spam gate, by reason.",
		},
		[]string{"reason"},
	)
	fanoutNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fanout_notifications_total",
			Help: "Notification records produced by the fan-out, by result.",
		},
		[]string{"result"},
	)
	busDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_bus_dropped_events_total",
			Help: "Events dropped because the internal bus buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		spamRejectionsTotal,
		fanoutNotificationsTotal,
		busDroppedTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncSpamRejection(reason string) {
	spamRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncFanout(result string) {
	fanoutNotificationsTotal.WithLabelValues(result).Inc()
}

func IncBusDropped() {
	busDroppedTotal.Inc()
}
