package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Metric_TransportAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_attempts_total",
		Help: "HTTP attempts made by the transport, labelled by outcome (ok, retryable_status, conn_error)",
	}, []string{"outcome"})
	Metric_TransportExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_retries_exhausted_total",
		Help: "Requests that failed after the full retry schedule",
	})
	Metric_TokenAcquisitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "token_acquisitions_total",
		Help: "Credential acquisitions from the identity backend, cache hits excluded",
	})
	Metric_TokenCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "token_cache_hits_total",
		Help: "Token lookups served from the cached credential",
	})
	Metric_IssuanceResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_issuance_total",
		Help: "Certificate request terminal states",
	}, []string{"state"})
	Metric_DomainRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_registrations_total",
		Help: "Domain registration attempts by result",
	}, []string{"success"})
)
