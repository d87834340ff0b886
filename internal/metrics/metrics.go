package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversation, execution and background-worker counters.

var (
	// Conversation
	InboundMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "conversation",
		Name:      "inbound_messages_total",
		Help:      "Inbound messages by classified intent",
	}, []string{"intent"})

	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatpay",
		Subsystem: "conversation",
		Name:      "turn_duration_seconds",
		Help:      "Time to handle one inbound message",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	TurnPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "conversation",
		Name:      "panics_total",
		Help:      "Turns that hit the top-level recover guard",
	})

	// Classifier
	ClassifierOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "classifier",
		Name:      "llm_outcomes_total",
		Help:      "LLM classification outcomes (ok, fallback, breaker_open, skipped)",
	}, []string{"outcome"})

	// Pending actions
	PendingActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "pending",
		Name:      "actions_total",
		Help:      "Pending action lifecycle events (created, confirmed, cancelled, expired, rejected)",
	}, []string{"event"})

	// Executor
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Executed actions by kind and outcome",
	}, []string{"kind", "outcome"})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "executor",
		Name:      "notification_failures_total",
		Help:      "Best-effort counterparty notifications that failed",
	})

	// Scheduled intents
	ScheduledProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "scheduler",
		Name:      "intents_processed_total",
		Help:      "Scheduled intents processed by final status",
	}, []string{"status"})

	// Webhook
	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "webhook",
		Name:      "duplicates_total",
		Help:      "Redelivered webhooks dropped by message id",
	})

	WebhookRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatpay",
		Subsystem: "webhook",
		Name:      "rate_limited_total",
		Help:      "Inbound messages rejected by the per-sender rate limit",
	})
)
