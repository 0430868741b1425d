package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"open-trivia-rounds/internal/domain"
)

// Metrics counts game activity. It satisfies app.Recorder.
type Metrics struct {
	transitions *prometheus.CounterVec
	timeouts    prometheus.Counter
	sessions    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "transitions_total",
			Help:      "Game session transitions by action and result.",
		}, []string{"action", "result"}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "question_timeouts_total",
			Help:      "Questions skipped because their timer expired.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "trivia",
			Name:      "sessions_open",
			Help:      "Game sessions currently held.",
		}),
	}
}

func (m *Metrics) Transition(action string, err error) {
	m.transitions.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) TimedOut() {
	m.timeouts.Inc()
}

func (m *Metrics) SessionOpened() {
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	m.sessions.Dec()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNoCategoriesAvailable):
		return "no_categories"
	}
	return "error"
}
