package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rss_sync_feed_updates_total",
		Help: "Feed update attempts by outcome",
	}, []string{"outcome"})

	feedUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rss_sync_feed_update_duration_seconds",
		Help:    "Duration of feed updates that acquired the feed lock",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})

	feedUpdatesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rss_sync_feed_updates_in_flight",
		Help: "Feed updates currently holding a feed lock",
	})

	entriesInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rss_sync_entries_inserted_total",
		Help: "Entries persisted for the first time",
	})

	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rss_sync_update_cycles_total",
		Help: "Completed update-all cycles",
	})
)

func observe(outcome Outcome) {
	feedUpdatesTotal.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == StatusSkippedLocked {
		return
	}
	feedUpdateDuration.Observe(outcome.Duration.Seconds())
	entriesInsertedTotal.Add(float64(outcome.Inserted))
}
