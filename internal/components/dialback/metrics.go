// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package dialback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dialback counters. A nil registerer keeps them
// unregistered, which is what tests want.
type Metrics struct {
	challengesIssued prometheus.Counter
	issueFailures    prometheus.Counter
	verifications    *prometheus.CounterVec
	authentications  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		challengesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "dialback_challenges_issued_total",
			Help: "Number of outbound dialback-signed requests",
		}),
		issueFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dialback_challenge_transport_failures_total",
			Help: "Number of outbound dialback-signed requests that failed in transport",
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialback_verifications_total",
			Help: "Number of verification callbacks answered, by outcome",
		}, []string{"outcome"}),
		authentications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialback_authentications_total",
			Help: "Number of inbound dialback-signed requests checked, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) orNoop() *Metrics {
	if m == nil {
		return NewMetrics(nil)
	}
	return m
}
