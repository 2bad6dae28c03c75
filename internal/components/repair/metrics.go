// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package repair

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the repair counters.
type Metrics struct {
	attempts *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics creates the counters and registers them with reg; nil leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repair_attempts_total",
			Help: "Number of metadata repair checks, by outcome",
		}, []string{"outcome"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "repair_inflight",
			Help: "Number of background repairs currently running",
		}),
	}
}
