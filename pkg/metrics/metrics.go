package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CastTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "cast_total",
	Help:      "Total number of cast requests that entered the pipeline",
})

var CastFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "cast_failed_total",
	Help:      "Total number of failed casts by error code",
}, []string{"error_code"})

var CastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "castforge",
	Name:      "cast_duration_seconds",
	Help:      "Duration of sandbox executions",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
})

var RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "rate_limited_total",
	Help:      "Total number of rate limited requests",
})

var BudgetBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "budget_blocked_total",
	Help:      "Total number of requests blocked by a hard budget limit",
})

var RedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "redis_errors_total",
	Help:      "Total number of rate limit counter store failures",
})

var UsageRecordFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "castforge",
	Name:      "usage_record_failures_total",
	Help:      "Usage recordings that failed after a successful execution and await reconciliation",
})

var SandboxFuelConsumed = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "castforge",
	Name:      "sandbox_fuel_consumed",
	Help:      "Fuel consumed per completed sandbox execution",
	Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
})
