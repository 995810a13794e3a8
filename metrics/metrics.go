package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ArenaMetrics interface {
	SetActiveRooms(n int)
	SetQueueLength(n int)
	AddMatchFinished(matchType, endReason string)
	AddTournamentTransition(status string)
	AddRejectedIntent(intent, code string)
	ObserveTickDuration(elapsed time.Duration)
}

func NewMetrics(registry *prometheus.Registry) ArenaMetrics {
	return setupPrometheusMetrics(registry)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveRooms(int)                {}
func (noopMetrics) SetQueueLength(int)                {}
func (noopMetrics) AddMatchFinished(string, string)   {}
func (noopMetrics) AddTournamentTransition(string)    {}
func (noopMetrics) AddRejectedIntent(string, string)  {}
func (noopMetrics) ObserveTickDuration(time.Duration) {}

// Noop discards everything. Used by tests and when metrics are disabled.
func Noop() ArenaMetrics { return noopMetrics{} }
