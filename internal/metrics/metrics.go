package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms exposed at /metrics.
var (
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnichat_messages_total",
		Help: "Client chat frames accepted for processing.",
	})

	RepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnichat_replies_total",
		Help: "Model-generated answers delivered to clients.",
	})

	GuardrailBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnichat_guardrail_blocks_total",
		Help: "Messages refused before reaching the model.",
	}, []string{"reason"})

	RateLimitDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnichat_ratelimit_drops_total",
		Help: "Frames dropped by the Redis limiters.",
	}, []string{"kind"})

	TokensConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnichat_tokens_consumed_total",
		Help: "Model tokens charged against session budgets.",
	})

	ModelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "omnichat_model_latency_seconds",
		Help:    "Wall time of chat completions.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})
)
