package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	activeRooms           prometheus.Gauge
	queueLength           prometheus.Gauge
	matchesFinished       prometheus.CounterVec
	tournamentTransitions prometheus.CounterVec
	rejectedIntents       prometheus.CounterVec
	tickDuration          prometheus.Histogram
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	activeRooms := factory.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_rooms",
		Help: "Number of live match sessions",
	})
	queueLength := factory.NewGauge(prometheus.GaugeOpts{
		Name: "arena_matchmaking_queue_length",
		Help: "Number of connections waiting in the matchmaking queue",
	})
	matchesFinished := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matches_finished_total",
		Help: "Finished matches by match type and end reason",
	}, []string{"match_type", "end_reason"})
	tournamentTransitions := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_tournament_transitions_total",
		Help: "Tournament status transitions by target status",
	}, []string{"status"})
	rejectedIntents := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_rejected_intents_total",
		Help: "Client intents refused by the server",
	}, []string{"intent", "code"})
	//nolint:promlinter
	tickDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_session_tick_duration_us",
		Help:    "Time spent inside one match tick in microseconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})

	return prometheusMetrics{
		activeRooms:           activeRooms,
		queueLength:           queueLength,
		matchesFinished:       *matchesFinished,
		tournamentTransitions: *tournamentTransitions,
		rejectedIntents:       *rejectedIntents,
		tickDuration:          tickDuration,
	}
}

func (m prometheusMetrics) SetActiveRooms(n int) { m.activeRooms.Set(float64(n)) }

func (m prometheusMetrics) SetQueueLength(n int) { m.queueLength.Set(float64(n)) }

func (m prometheusMetrics) AddMatchFinished(matchType, endReason string) {
	// tournament rooms carry the tournament id as match type
	if matchType != "local" && matchType != "matchmaking" && matchType != "direct" {
		matchType = "tournament"
	}
	m.matchesFinished.With(prometheus.Labels{"match_type": matchType, "end_reason": endReason}).Inc()
}

func (m prometheusMetrics) AddTournamentTransition(status string) {
	m.tournamentTransitions.With(prometheus.Labels{"status": status}).Inc()
}

func (m prometheusMetrics) AddRejectedIntent(intent, code string) {
	m.rejectedIntents.With(prometheus.Labels{"intent": strings.ToLower(intent), "code": code}).Inc()
}

func (m prometheusMetrics) ObserveTickDuration(elapsed time.Duration) {
	m.tickDuration.Observe(float64(elapsed.Microseconds()))
}
