// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerificationCounter counts verification calls by outcome:
	// "ok", "quota_exceeded", "provider_failure".
	VerificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressd_verifications_total",
			Help: "Total number of address verification calls by outcome",
		},
		[]string{"outcome"},
	)

	// LoginCounter counts login attempts by outcome:
	// "ok", "conflict", "rejected".
	LoginCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressd_logins_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RefundCounter counts credit refunds after failed provider calls.
	RefundCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addressd_credit_refunds_total",
			Help: "Total number of credit refunds issued",
		},
	)
)

func init() {
	prometheus.MustRegister(VerificationCounter, LoginCounter, RefundCounter)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
