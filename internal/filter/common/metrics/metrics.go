// Package metrics defines the Prometheus collectors of the filter engine.
//
// Collectors are created per Metrics value and registered on an injected
// Registerer, so tests can use a private registry. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simplefilter"

// Result label values shared by reload and fetch counters.
const (
	ResultOK          = "ok"
	ResultNotModified = "not_modified"
	ResultFailed      = "failed"
	ResultExhausted   = "exhausted"
	ResultStale       = "stale"
	ResultMissing     = "missing"
	ResultCleared     = "cleared"
)

// Metrics groups every collector the engine updates.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	Reloads       *prometheus.CounterVec
	FetchAttempts *prometheus.CounterVec
	Rules         *prometheus.GaugeVec
	EvalDuration  prometheus.Histogram
}

// New creates the collectors and registers them on reg. It panics on
// duplicate registration, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Request decisions by evaluation phase and action.",
		}, []string{"phase", "action"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_requests_total",
			Help:      "Decision cache lookups by outcome.",
		}, []string{"outcome"}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_reloads_total",
			Help:      "Profile list reloads by profile slot and result.",
		}, []string{"slot", "result"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Remote list download attempts by profile slot and result.",
		}, []string{"slot", "result"}),
		Rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules",
			Help:      "Compiled rules per profile slot, list kind and class.",
		}, []string{"slot", "list", "class"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating one request.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~0.26s
		}),
	}
	reg.MustRegister(m.Decisions, m.CacheRequests, m.Reloads, m.FetchAttempts, m.Rules, m.EvalDuration)
	return m
}

// Decision counts one evaluation outcome.
func (m *Metrics) Decision(phase, action string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(phase, action).Inc()
}

// CacheLookup counts a decision cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheRequests.WithLabelValues(outcome).Inc()
}

// Reload counts one profile reload.
func (m *Metrics) Reload(slot int, result string) {
	if m == nil {
		return
	}
	m.Reloads.WithLabelValues(strconv.Itoa(slot), result).Inc()
}

// FetchAttempt counts one download attempt.
func (m *Metrics) FetchAttempt(slot int, result string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(strconv.Itoa(slot), result).Inc()
}

// SetRules records the rule count of one sub-list.
func (m *Metrics) SetRules(slot int, list, class string, n int) {
	if m == nil {
		return
	}
	m.Rules.WithLabelValues(strconv.Itoa(slot), list, class).Set(float64(n))
}

// ObserveEval records the duration of one evaluation in seconds.
func (m *Metrics) ObserveEval(seconds float64) {
	if m == nil {
		return
	}
	m.EvalDuration.Observe(seconds)
}
