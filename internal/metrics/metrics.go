// Package metrics exposes prometheus instrumentation for reminder delivery
// and conversation handling.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pillmemo"

// Metrics groups every collector the service records into.
type Metrics struct {
	gatherer           prometheus.Gatherer
	remindersSent      *prometheus.CounterVec
	deliveryFailures   prometheus.Counter
	remindersSkipped   *prometheus.CounterVec
	historyActions     *prometheus.CounterVec
	pendingSnoozes     prometheus.Gauge
	tickDuration       prometheus.Histogram
	conversationEvents *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		remindersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Reminder notifications delivered, by kind (regular, snooze).",
			},
			[]string{"kind"},
		),
		deliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_failures_total",
				Help:      "Reminder notifications the transport failed to deliver.",
			},
		),
		remindersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_skipped_total",
				Help:      "Tick candidates that were not due, by reason.",
			},
			[]string{"reason"},
		),
		historyActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_actions_total",
				Help:      "History entries appended, by action.",
			},
			[]string{"action"},
		),
		pendingSnoozes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_snoozes",
				Help:      "One-shot snooze jobs waiting to fire.",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of a delivery tick.",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30},
			},
		),
		conversationEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversation_events_total",
				Help:      "Conversation events handled, by step and outcome.",
			},
			[]string{"step", "outcome"},
		),
	}

	reg.MustRegister(
		m.remindersSent,
		m.deliveryFailures,
		m.remindersSkipped,
		m.historyActions,
		m.pendingSnoozes,
		m.tickDuration,
		m.conversationEvents,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ReminderSent counts a delivered notification. kind is "regular" or "snooze".
func (m *Metrics) ReminderSent(kind string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(kind).Inc()
}

// DeliveryFailed counts a transport failure.
func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// ReminderSkipped counts a tick candidate that was not due.
func (m *Metrics) ReminderSkipped(reason string) {
	if m == nil {
		return
	}
	m.remindersSkipped.WithLabelValues(reason).Inc()
}

// HistoryAppended counts a history entry.
func (m *Metrics) HistoryAppended(action string) {
	if m == nil {
		return
	}
	m.historyActions.WithLabelValues(action).Inc()
}

// SetPendingSnoozes records the size of the one-shot queue.
func (m *Metrics) SetPendingSnoozes(n int) {
	if m == nil {
		return
	}
	m.pendingSnoozes.Set(float64(n))
}

// ObserveTick records how long a tick took.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// ConversationEvent counts a state machine event.
func (m *Metrics) ConversationEvent(step, outcome string) {
	if m == nil {
		return
	}
	m.conversationEvents.WithLabelValues(step, outcome).Inc()
}
