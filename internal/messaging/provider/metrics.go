package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerRequestDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "messaging",
		Name:      "provider_request_duration_seconds",
		Help:      "Duration of send requests to SMS providers.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"provider_name"},
)
