package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes session and mesh metrics. A nil *Collector is valid and
// records nothing, so wiring stays optional in tests.
type Collector struct {
	sessionsActive prometheus.Gauge
	linksActive    prometheus.Gauge

	joinsTotal        prometheus.Counter
	joinFailuresTotal prometheus.Counter
	linksDialedTotal  prometheus.Counter
	chatSentTotal     prometheus.Counter
	chatReceivedTotal prometheus.Counter

	joinDuration          prometheus.Histogram
	linkEstablishDuration prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studymesh_sessions_active",
			Help: "Number of active room sessions",
		}),

		linksActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studymesh_peer_links_active",
			Help: "Number of live peer media links",
		}),

		joinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studymesh_room_joins_total",
			Help: "Total number of completed room joins",
		}),

		joinFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studymesh_room_join_failures_total",
			Help: "Total number of failed room joins",
		}),

		linksDialedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studymesh_peer_links_dialed_total",
			Help: "Total number of peer link attempts, inbound and outbound",
		}),

		chatSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studymesh_chat_messages_sent_total",
			Help: "Total number of chat messages sent by the local participant",
		}),

		chatReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studymesh_chat_messages_received_total",
			Help: "Total number of chat messages received from remote participants",
		}),

		joinDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "studymesh_room_join_duration_seconds",
			Help:    "Duration of the join sequence from request to active session",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		linkEstablishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "studymesh_peer_link_establish_duration_seconds",
			Help:    "Time from link dial to first remote track",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (c *Collector) SessionStarted(joinDuration time.Duration) {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.joinsTotal.Inc()
	c.joinDuration.Observe(joinDuration.Seconds())
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

func (c *Collector) JoinFailed() {
	if c == nil {
		return
	}
	c.joinFailuresTotal.Inc()
}

func (c *Collector) LinkDialed() {
	if c == nil {
		return
	}
	c.linksActive.Inc()
	c.linksDialedTotal.Inc()
}

func (c *Collector) LinkOpened(establishDuration time.Duration) {
	if c == nil {
		return
	}
	c.linkEstablishDuration.Observe(establishDuration.Seconds())
}

func (c *Collector) LinkClosed() {
	if c == nil {
		return
	}
	c.linksActive.Dec()
}

func (c *Collector) ChatSent() {
	if c == nil {
		return
	}
	c.chatSentTotal.Inc()
}

func (c *Collector) ChatReceived() {
	if c == nil {
		return
	}
	c.chatReceivedTotal.Inc()
}
