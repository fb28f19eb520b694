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

package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics holds the process-wide collectors for the evaluation
// graph and its focuser. All fields are registered once; components hold
// on to the struct and treat a nil receiver as "monitoring disabled".
type PrometheusMetrics struct {
	Registerer prometheus.Registerer

	GraphNodes prometheus.Gauge

	FocusMarkDurations  prometheus.Summary
	FocusSweepDurations prometheus.Summary

	FocusNodesRemoved     prometheus.Counter
	FocusRdepEdgesRemoved prometheus.Counter
	FocusFanoutWarnings   *prometheus.CounterVec

	ActionCacheEvictions prometheus.Counter
}

var (
	metrics     *PrometheusMetrics
	metricsOnce sync.Once
)

// GetMetrics returns the process-wide metrics instance, registering all
// collectors with the default registerer on first use.
func GetMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		metrics = newPrometheusMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

func newPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noop
	}

	pm := &PrometheusMetrics{
		Registerer: reg,

		GraphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evalgraph_nodes",
			Help: "Number of node entries currently in the evaluation graph",
		}),
		FocusMarkDurations: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "evalgraph_focus_mark_duration_ms",
			Help: "Duration of the focus mark phase in milliseconds",
		}),
		FocusSweepDurations: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "evalgraph_focus_sweep_duration_ms",
			Help: "Duration of the focus sweep phase in milliseconds",
		}),
		FocusNodesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalgraph_focus_nodes_removed_total",
			Help: "Number of node entries deleted by focus sweeps",
		}),
		FocusRdepEdgesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalgraph_focus_rdep_edges_removed_total",
			Help: "Number of reverse-dep edges dropped by focus sweeps",
		}),
		FocusFanoutWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalgraph_focus_fanout_warnings_total",
			Help: "Nodes whose edge fan-out exceeded the warning threshold during mark",
		}, []string{"edge_kind"}),
		ActionCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalgraph_action_cache_evictions_total",
			Help: "Action cache entries evicted for deleted action outputs",
		}),
	}

	reg.MustRegister(
		pm.GraphNodes,
		pm.FocusMarkDurations,
		pm.FocusSweepDurations,
		pm.FocusNodesRemoved,
		pm.FocusRdepEdgesRemoved,
		pm.FocusFanoutWarnings,
		pm.ActionCacheEvictions,
	)

	return pm
}

// NewForTest returns an instance backed by its own registry so tests do
// not collide on the default registerer.
func NewForTest(reg prometheus.Registerer) *PrometheusMetrics {
	return newPrometheusMetrics(reg)
}
