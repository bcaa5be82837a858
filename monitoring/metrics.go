package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiosk_waiting_queue_length",
			Help: "Current waiting queue length per session",
		},
		[]string{"session_id"},
	)

	reconcileEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_reconcile_events_total",
			Help: "Change events processed by the reconciler, by outcome",
		},
		[]string{"table", "outcome"},
	)

	pollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_poll_cycles_total",
			Help: "Polling cycles run, by subscription health",
		},
		[]string{"mode"},
	)

	handshakeTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_handshake_timeouts_total",
			Help: "Transitions advanced because the board never confirmed",
		},
	)

	prizeBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_prize_blocks_total",
			Help: "Prize candidates dropped by the one-prize invariant",
		},
		[]string{"session_id"},
	)

	subscriptionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_change_subscription_up",
			Help: "Whether the change notification subscription is connected",
		},
	)
)

func SetQueueLength(sessionID string, n int) {
	queueLength.WithLabelValues(sessionID).Set(float64(n))
}

// TrackReconcileEvent outcomes: applied, duplicate, stale, invalid,
// ignored, dropped.
func TrackReconcileEvent(table, outcome string) {
	reconcileEvents.WithLabelValues(table, outcome).Inc()
}

// TrackPollCycle modes: idle, fallback.
func TrackPollCycle(mode string) {
	pollCycles.WithLabelValues(mode).Inc()
}

func TrackHandshakeTimeout() {
	handshakeTimeouts.Inc()
}

func TrackPrizeBlocked(sessionID string) {
	prizeBlocks.WithLabelValues(sessionID).Inc()
}

func SetSubscriptionUp(up bool) {
	if up {
		subscriptionUp.Set(1)
	} else {
		subscriptionUp.Set(0)
	}
}
