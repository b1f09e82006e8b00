// Package metrics exposes Prometheus counters for the conversation and follow-up flows.
// Domain events are counted through bus subscriptions; the webhook reports inbound
// traffic directly.
package metrics

import (
	"context"
	"net/http"

	"conectapro/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conectapro"

// Metrics holds every collector the service registers.
type Metrics struct {
	InboundMessages *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	IntentOutcomes  *prometheus.CounterVec
	LeadsConnected  *prometheus.CounterVec
	LeadsClosed     *prometheus.CounterVec
	Ratings         prometheus.Histogram
	Followups       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry so tests
// and multiple instances do not collide on the default one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{gatherer: reg}
	m.InboundMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbound_messages_total",
			Help:      "Inbound WhatsApp messages by outcome",
		},
		[]string{"outcome"},
	)
	m.TurnDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "turn_duration_seconds",
			Help:      "Time spent processing one inbound message",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	m.IntentOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "resolutions_total",
			Help:      "Intent resolutions by outcome and method",
		},
		[]string{"outcome", "method"},
	)
	m.LeadsConnected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "connected_total",
			Help:      "Leads whose customer consented to share contact",
		},
		[]string{"service"},
	)
	m.LeadsClosed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "closed_total",
			Help:      "Leads that reached CLOSED by reason",
		},
		[]string{"reason"},
	)
	m.Ratings = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "rating_stars",
			Help:      "Stars given by customers",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)
	m.Followups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "followup",
			Name:      "sent_total",
			Help:      "Follow-up questions and reminders sent by stage",
		},
		[]string{"stage", "kind"},
	)
	return m
}

// Subscribe counts domain events published on bus.
func (m *Metrics) Subscribe(bus events.Bus) {
	bus.Subscribe(events.IntentResolved{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.IntentResolved); ok {
			m.IntentOutcomes.WithLabelValues(ev.Outcome, ev.Method).Inc()
		}
		return nil
	}))
	bus.Subscribe(events.LeadConnected{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.LeadConnected); ok {
			m.LeadsConnected.WithLabelValues(ev.Service).Inc()
		}
		return nil
	}))
	bus.Subscribe(events.LeadClosed{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.LeadClosed); ok {
			m.LeadsClosed.WithLabelValues(ev.Reason).Inc()
		}
		return nil
	}))
	bus.Subscribe(events.ProviderRated{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.ProviderRated); ok {
			m.Ratings.Observe(float64(ev.Stars))
		}
		return nil
	}))
	bus.Subscribe(events.FollowupSent{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.FollowupSent); ok {
			kind := "question"
			if ev.Reminder {
				kind = "reminder"
			}
			m.Followups.WithLabelValues(ev.Stage, kind).Inc()
		}
		return nil
	}))
}

// InboundMessage counts one webhook delivery with its outcome.
func (m *Metrics) InboundMessage(outcome string) {
	m.InboundMessages.WithLabelValues(outcome).Inc()
}

// ObserveTurn records how long a processed message took, in seconds.
func (m *Metrics) ObserveTurn(seconds float64) {
	m.TurnDuration.Observe(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
