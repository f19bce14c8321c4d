// Package telemetry exposes low-overhead Prometheus metrics for the
// reconciliation pipeline. Everything is registered on the default
// registry and served by the API's /metrics endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendsTotal counts send attempts by outcome: sent, failed, rejected.
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterly_sends_total",
		Help: "Message send attempts by outcome.",
	}, []string{"outcome"})

	// MergesTotal counts live-feed merge decisions: appended, promoted,
	// duplicate, dropped.
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterly_merges_total",
		Help: "Live ingest merge decisions.",
	}, []string{"op"})

	// UploadsTotal counts file uploads by outcome: ok, failed.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterly_uploads_total",
		Help: "File uploads by outcome.",
	}, []string{"outcome"})

	// SummaryUpdatesTotal counts channel summary persistence attempts.
	SummaryUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterly_summary_updates_total",
		Help: "Channel summary persistence attempts by outcome.",
	}, []string{"outcome"})

	// SendLatency observes insert round-trip time in seconds.
	SendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatterly_send_latency_seconds",
		Help:    "Latency of message insert acknowledgments.",
		Buckets: prometheus.DefBuckets,
	})

	// RequestsTotal counts API requests by route and status class.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatterly_http_requests_total",
		Help: "API requests by route and status class.",
	}, []string{"route", "class"})
)
