package guard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

const (
	OutcomeAllowed          = "allowed"
	OutcomeFeatureNotInPlan = "feature_not_in_plan"
	OutcomeQuotaExceeded    = "quota_exceeded"
	OutcomeError            = "error"

	// LabelUnknown replaces actions and features missing from the catalog.
	LabelUnknown = "unknown"
)

// Metrics holds the guard's prometheus collectors.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planguard",
			Name:      "decisions_total",
			Help:      "Guard decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "planguard",
			Name:      "check_duration_seconds",
			Help:      "Latency of guard operations.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.duration)
	}
	return m
}

// Decisions exposes the decision counter, mainly for tests.
func (m *Metrics) Decisions() *prometheus.CounterVec { return m.decisions }

func (m *Metrics) observe(op, label string, d decision.Decision, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(took.Seconds())
	m.decisions.WithLabelValues(label, outcome(d, err)).Inc()
}

// actionLabel bounds label values to the actions of c.
func actionLabel(c *plan.Catalog, a plan.Action) string {
	if !c.HasAction(a) {
		return LabelUnknown
	}
	return string(a)
}

func featureLabel(c *plan.Catalog, f plan.Feature) string {
	if _, err := c.MinimumTierFor(f); err != nil {
		return "feature:" + LabelUnknown
	}
	return "feature:" + string(f)
}

func outcome(d decision.Decision, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case d.Allowed:
		return OutcomeAllowed
	case d.Reason == decision.ReasonFeatureNotInPlan:
		return OutcomeFeatureNotInPlan
	default:
		return OutcomeQuotaExceeded
	}
}

func endSpan(span trace.Span, d decision.Decision, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "guard could not decide")
		return
	}
	span.SetAttributes(
		attribute.Bool("guard.allowed", d.Allowed),
		attribute.String("guard.plan", string(d.Plan)),
		attribute.String("guard.outcome", outcome(d, nil)),
	)
	if d.Limit != 0 || d.CurrentUsage != 0 {
		span.SetAttributes(attribute.Int64("guard.usage", d.CurrentUsage), attribute.Int64("guard.limit", d.Limit))
	}
	span.SetStatus(codes.Ok, "")
}
