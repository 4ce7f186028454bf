package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|locked|pending).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccountLockouts counts lockout escalations triggered by failed logins.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accountd_account_lockouts_total",
			Help: "Total number of account lockouts",
		},
	)

	// TokensIssued counts credential tokens issued by purpose.
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_tokens_issued_total",
			Help: "Total number of credential tokens issued",
		},
		[]string{"purpose"},
	)

	// TokensConsumed counts credential token verifications by purpose and result.
	TokensConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_tokens_consumed_total",
			Help: "Total number of credential token verification attempts",
		},
		[]string{"purpose", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accountd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
