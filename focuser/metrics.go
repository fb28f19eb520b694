//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package focuser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomal07/bazel/usecases/monitoring"
)

type Metrics struct {
	enabled bool

	markDurations  prometheus.Summary
	sweepDurations prometheus.Summary

	nodesRemoved     prometheus.Counter
	rdepEdgesRemoved prometheus.Counter
	rdepWarnings     prometheus.Counter
	depWarnings      prometheus.Counter
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	if prom == nil {
		return &Metrics{enabled: false}
	}

	return &Metrics{
		enabled:          true,
		markDurations:    prom.FocusMarkDurations,
		sweepDurations:   prom.FocusSweepDurations,
		nodesRemoved:     prom.FocusNodesRemoved,
		rdepEdgesRemoved: prom.FocusRdepEdgesRemoved,
		rdepWarnings:     prom.FocusFanoutWarnings.WithLabelValues("rdeps"),
		depWarnings:      prom.FocusFanoutWarnings.WithLabelValues("deps"),
	}
}

func (m *Metrics) MarkFinished(d time.Duration) {
	if !m.enabled {
		return
	}

	m.markDurations.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SweepFinished(d time.Duration) {
	if !m.enabled {
		return
	}

	m.sweepDurations.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) NodeRemoved() {
	if !m.enabled {
		return
	}

	m.nodesRemoved.Inc()
}

func (m *Metrics) RdepEdgesRemoved(n int64) {
	if !m.enabled || n <= 0 {
		return
	}

	m.rdepEdgesRemoved.Add(float64(n))
}

func (m *Metrics) RdepFanoutWarning() {
	if !m.enabled {
		return
	}

	m.rdepWarnings.Inc()
}

func (m *Metrics) DepFanoutWarning() {
	if !m.enabled {
		return
	}

	m.depWarnings.Inc()
}
