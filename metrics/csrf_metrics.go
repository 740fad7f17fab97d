package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CSRF-specific Prometheus metrics.
//
// The token registry is the only shared mutable state in the CSRF core, so
// these metrics are the primary signal for sizing it and for spotting abuse:
// a climbing issuance rate with a flat validation rate means someone is
// hammering the issuance endpoint without ever submitting forms.

var (
	// CSRFTokensIssued counts tokens handed out by the issuer.
	CSRFTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plotvault",
			Subsystem: "csrf",
			Name:      "tokens_issued_total",
			Help:      "Total number of CSRF tokens issued",
		},
	)

	// CSRFValidations counts validation decisions.
	// Labels:
	//   - result: "allowed", "token_missing", "token_mismatch", "token_expired"
	CSRFValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plotvault",
			Subsystem: "csrf",
			Name:      "validations_total",
			Help:      "Total number of CSRF validation decisions",
		},
		[]string{"result"},
	)

	// CSRFRegistrySize is the current number of live tokens in the registry.
	CSRFRegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plotvault",
			Subsystem: "csrf",
			Name:      "registry_size",
			Help:      "Current number of tokens held in the CSRF registry",
		},
	)

	// CSRFTokensSwept counts tokens removed by eviction sweeps.
	CSRFTokensSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plotvault",
			Subsystem: "csrf",
			Name:      "tokens_swept_total",
			Help:      "Total number of expired CSRF tokens removed by sweeps",
		},
	)
)

// RecordCSRFIssued records a successfully issued token.
func RecordCSRFIssued() {
	CSRFTokensIssued.Inc()
}

// RecordCSRFValidation records a validation decision by outcome label.
func RecordCSRFValidation(result string) {
	CSRFValidations.WithLabelValues(result).Inc()
}

// UpdateCSRFRegistrySize updates the registry size gauge.
func UpdateCSRFRegistrySize(size int) {
	CSRFRegistrySize.Set(float64(size))
}

// RecordCSRFSwept adds swept tokens to the eviction counter.
func RecordCSRFSwept(count int) {
	if count > 0 {
		CSRFTokensSwept.Add(float64(count))
	}
}
