package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSubmittedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "messages_submitted_total",
			Help:      "Total messages accepted by the send path.",
		},
		[]string{"channel"},
	)

	sendRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "send_rejected_total",
			Help:      "Total send requests rejected before enqueue.",
		},
		[]string{"reason"}, // validation, rate_limited, queue_error
	)

	statusUpdatesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "status_updates_total",
			Help:      "Total status transitions applied by the reconciler.",
		},
		[]string{"from", "to"},
	)

	idempotentHitsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "status_updates_idempotent_total",
			Help:      "Status updates short-circuited because the status was already current.",
		},
	)

	transitionRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "status_transitions_rejected_total",
			Help:      "Status updates rejected by the transition table.",
		},
		[]string{"from", "to"},
	)

	dispatchJobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "dispatch_jobs_processed_total",
			Help:      "Total dispatch jobs processed by outcome.",
		},
		[]string{"outcome"}, // sent, failed, retried, skipped
	)

	dispatchProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messaging",
			Name:      "dispatch_job_duration_seconds",
			Help:      "Duration of dispatch job processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)

	callbacksProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "callbacks_processed_total",
			Help:      "Total provider callbacks processed by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // kind: status, inbound
	)
)
