// Package metrics exposes Prometheus metrics for the canvas designer.
//
//   - canvas_autosave_total{result}          autosave attempts (success|failure|superseded)
//   - canvas_validation_total{result}        explicit validation runs (success|failure)
//   - canvas_stale_responses_total{op}       responses discarded because a newer request won
//   - canvas_reverts_total{result}           revert calls (success|failure)
//   - canvas_dirty_versions                  working copies with unsaved edits
//   - canvas_analytics_events_total{result}  onboarding events delivered or requeued
//
// Collectors are registered in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	autosaveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_autosave_total",
			Help: "Autosave attempts by result",
		},
		[]string{"result"},
	)

	validationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_validation_total",
			Help: "Explicit validation runs by result",
		},
		[]string{"result"},
	)

	staleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_stale_responses_total",
			Help: "Responses discarded because a newer request for the same version was applied",
		},
		[]string{"op"}, // autosave|validate
	)

	revertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_reverts_total",
			Help: "Revert calls by result",
		},
		[]string{"result"},
	)

	dirtyVersions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_dirty_versions",
			Help: "Working copies with edits not yet saved",
		},
	)

	analyticsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_analytics_events_total",
			Help: "Onboarding events by delivery result (sent|requeued)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(autosaveTotal, validationTotal, staleResponses, revertsTotal)
	prometheus.MustRegister(dirtyVersions, analyticsEvents)
}

func IncAutosave(result string)               { autosaveTotal.WithLabelValues(result).Inc() }
func IncValidation(result string)             { validationTotal.WithLabelValues(result).Inc() }
func IncStaleResponse(op string)              { staleResponses.WithLabelValues(op).Inc() }
func IncRevert(result string)                 { revertsTotal.WithLabelValues(result).Inc() }
func SetDirtyVersions(n int)                  { dirtyVersions.Set(float64(n)) }
func AddAnalyticsEvents(result string, n int) { analyticsEvents.WithLabelValues(result).Add(float64(n)) }
