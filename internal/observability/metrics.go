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
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_online_users",
			Help: "Number of users with at least one live connection.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket events by direction.",
		},
		[]string{"direction", "event"},
	)
	wsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_ws_dropped_frames_total",
			Help: "Frames dropped because a connection send buffer was full.",
		},
	)
	notificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_created_total",
			Help: "Notifications persisted, by type.",
		},
		[]string{"type"},
	)
	orderStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_order_status_changes_total",
			Help: "Order status transitions pushed to clients, by new status.",
		},
		[]string{"status"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)

	syncConnectionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_connection_transitions_total",
			Help: "Push connection lifecycle transitions seen by the sync client.",
		},
		[]string{"state"},
	)
	syncDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_discarded_total",
			Help: "Push payloads dropped by the sync client, by reason.",
		},
		[]string{"kind"},
	)
	syncReadMarksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_read_marks_total",
			Help: "Messages flipped to read by the sync client.",
		},
	)
	syncRefetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_order_refetch_total",
			Help: "Full order refetches issued by the sync client.",
		},
		[]string{"trigger"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsOnlineUsers,
		wsEventsTotal,
		wsDroppedTotal,
		notificationsCreatedTotal,
		orderStatusChangesTotal,
		amqpPublishErrorsTotal,
		syncConnectionTransitions,
		syncDiscardedTotal,
		syncReadMarksTotal,
		syncRefetchTotal,
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

func SetOnlineUsers(n int) {
	wsOnlineUsers.Set(float64(n))
}

// IncWSEvent counts a frame; direction is "in" or "out".
func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncWSDropped() {
	wsDroppedTotal.Inc()
}

func IncNotificationCreated(kind string) {
	notificationsCreatedTotal.WithLabelValues(kind).Inc()
}

func IncOrderStatusChange(status string) {
	orderStatusChangesTotal.WithLabelValues(status).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncSyncConnection(state string) {
	syncConnectionTransitions.WithLabelValues(state).Inc()
}

func IncSyncDiscard(kind string) {
	syncDiscardedTotal.WithLabelValues(kind).Inc()
}

func AddSyncReadMarks(n int) {
	syncReadMarksTotal.Add(float64(n))
}

func IncSyncRefetch(trigger string) {
	syncRefetchTotal.WithLabelValues(trigger).Inc()
}
