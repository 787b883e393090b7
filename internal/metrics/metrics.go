package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeFallback     = "fallback"
	OutcomeFailure      = "failure"
	OutcomeUnconfigured = "unconfigured"
	OutcomeSkipped      = "skipped"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	refreshes     *prometheus.CounterVec
	rate          prometheus.Gauge
	lastSuccess   prometheus.Gauge
	storageErrors *prometheus.CounterVec
	goals         prometheus.Gauge
	contributions prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goaltracker",
			Name:      "rate_refresh_total",
			Help:      "Exchange rate refresh attempts by outcome.",
		}, []string{"outcome"}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goaltracker",
			Name:      "usd_inr_rate",
			Help:      "Current USD to INR rate served to consumers (0 when unavailable).",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goaltracker",
			Name:      "rate_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful rate fetch.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goaltracker",
			Name:      "storage_errors_total",
			Help:      "Key-value store failures by operation.",
		}, []string{"op"}),
		goals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goaltracker",
			Name:      "goals",
			Help:      "Number of goals held in the goal store.",
		}),
		contributions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goaltracker",
			Name:      "contributions_total",
			Help:      "Contributions added since start.",
		}),
	}
	reg.MustRegister(m.refreshes, m.rate, m.lastSuccess, m.storageErrors, m.goals, m.contributions)
	return m
}

func (m *Metrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// SetRate records the rate currently served; a zero lastSuccess leaves the
// success timestamp untouched.
func (m *Metrics) SetRate(rate float64, lastSuccess time.Time) {
	if m == nil {
		return
	}
	m.rate.Set(rate)
	if !lastSuccess.IsZero() {
		m.lastSuccess.Set(float64(lastSuccess.Unix()))
	}
}

func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetGoals(n int) {
	if m == nil {
		return
	}
	m.goals.Set(float64(n))
}

func (m *Metrics) ContributionAdded() {
	if m == nil {
		return
	}
	m.contributions.Inc()
}
