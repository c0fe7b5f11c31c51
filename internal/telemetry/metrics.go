// Package telemetry provides Prometheus metrics for the live-delivery path.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesPersisted      prometheus.Counter
	DeliveriesAttempted    prometheus.Counter
	DeliveriesMissed       prometheus.Counter
	ConnectionsEvicted     prometheus.Counter
	TranscriptionsIngested prometheus.Counter
	TranscriptionsIgnored  prometheus.Counter

	// Gauges
	ConnectionsActive prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_persisted_total", Help: "Messages appended to the message log"})
		DeliveriesAttempted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_deliveries_attempted_total", Help: "Live delivery attempts (one per fan-out target)"})
		DeliveriesMissed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_deliveries_missed_total", Help: "Fan-out targets with no live connection or a failed send"})
		ConnectionsEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_connections_evicted_total", Help: "Connections evicted after a failed send"})
		TranscriptionsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_transcriptions_ingested_total", Help: "Transcription callbacks persisted as chat messages"})
		TranscriptionsIgnored = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_transcriptions_ignored_total", Help: "Transcription callbacks dropped for unknown senders"})
		ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connections_active", Help: "Currently registered live connections"})
	})
}

// Inc increments c if metrics are initialized. Packages call this instead of
// c.Inc() directly so unit tests can run without registering collectors.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// AddConnections adjusts the active-connection gauge; safe before Init.
func AddConnections(delta float64) {
	if ConnectionsActive != nil {
		ConnectionsActive.Add(delta)
	}
}
