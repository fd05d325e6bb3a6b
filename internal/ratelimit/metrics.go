package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksAllowedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "checks_allowed_total",
			Help:      "Total rate-limit checks that were allowed.",
		},
		[]string{"message_type"},
	)

	checksDeniedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "checks_denied_total",
			Help:      "Total rate-limit checks denied, by limiting window.",
		},
		[]string{"message_type", "window"},
	)

	failOpenCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "fail_open_total",
			Help:      "Total checks allowed because the counter store was unreachable.",
		},
	)
)
