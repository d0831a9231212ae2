// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks ingestion outcomes. Each Metrics owns its registry so
// tests can create isolated instances without global-collector
// collisions.
type Metrics struct {
	registry *prometheus.Registry

	// Received counts every inbound request, before any validation.
	Received prometheus.Counter

	// Relayed counts messages successfully sent into a room.
	Relayed prometheus.Counter

	// Rejected counts requests that did not result in a relayed
	// message, labeled by reason: bad_request and unknown_hook for
	// caller faults, internal and relay_failed for bridge-side
	// failures.
	Rejected *prometheus.CounterVec
}

// NewMetrics creates the ingestion metrics on a fresh registry with
// the standard Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Received: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookbridge_webhook_received_total",
			Help: "Inbound webhook requests received",
		}),
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookbridge_webhook_relayed_total",
			Help: "Webhook messages relayed into rooms",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hookbridge_webhook_rejected_total",
			Help: "Inbound webhook requests rejected",
		}, []string{"reason"}),
	}
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
