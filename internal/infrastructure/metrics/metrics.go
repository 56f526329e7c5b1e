// Package metrics exposes reconciliation counters to Prometheus.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
)

const maxLabelLen = 64

// sanitizeLabel keeps label values short and non-empty; provider event
// types are attacker-controlled until the signature is checked.
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// ReconcileMetrics implements reconciliation.Metrics
type ReconcileMetrics struct {
	webhookEvents      *prometheus.CounterVec
	signatureFailures  prometheus.Counter
	candidates         *prometheus.CounterVec
	entitlementWrites  *prometheus.CounterVec
	orphansRecorded    prometheus.Counter
	orphansResolved    *prometheus.CounterVec
	duplicateSubs      prometheus.Counter
	reconcileDurations prometheus.Histogram
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *ReconcileMetrics {
	m := &ReconcileMetrics{
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subsync",
				Name:      "webhook_events_total",
				Help:      "Provider webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "webhook_signature_failures_total",
			Help:      "Webhook deliveries rejected for a bad signature",
		}),
		candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subsync",
				Name:      "reconcile_candidates_total",
				Help:      "Subscriptions visited by reconciliation by outcome",
			},
			[]string{"outcome"},
		),
		entitlementWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subsync",
				Name:      "entitlement_writes_total",
				Help:      "Entitlement store writes by outcome",
			},
			[]string{"outcome"},
		),
		orphansRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "orphans_recorded_total",
			Help:      "Subscriptions recorded as orphaned",
		}),
		orphansResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subsync",
				Name:      "orphans_resolved_total",
				Help:      "Orphaned subscriptions linked to a user by method",
			},
			[]string{"method"},
		),
		duplicateSubs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "duplicate_subscriptions_total",
			Help:      "Users seen with more than one live subscription",
		}),
		reconcileDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "subsync",
			Name:      "reconcile_duration_seconds",
			Help:      "Wall time of a full reconciliation pass",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
	}

	reg.MustRegister(
		m.webhookEvents,
		m.signatureFailures,
		m.candidates,
		m.entitlementWrites,
		m.orphansRecorded,
		m.orphansResolved,
		m.duplicateSubs,
		m.reconcileDurations,
	)
	return m
}

func (m *ReconcileMetrics) WebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(sanitizeLabel(eventType), sanitizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) SignatureFailure() { m.signatureFailures.Inc() }

func (m *ReconcileMetrics) CandidateOutcome(outcome string) {
	m.candidates.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) EntitlementWrite(outcome string) {
	m.entitlementWrites.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) OrphanRecorded() { m.orphansRecorded.Inc() }

func (m *ReconcileMetrics) OrphanResolved(method string) {
	m.orphansResolved.WithLabelValues(sanitizeLabel(method)).Inc()
}

func (m *ReconcileMetrics) DuplicateSubscription() { m.duplicateSubs.Inc() }

func (m *ReconcileMetrics) ObserveReconcile(d time.Duration) {
	m.reconcileDurations.Observe(d.Seconds())
}

var _ reconciliation.Metrics = (*ReconcileMetrics)(nil)
