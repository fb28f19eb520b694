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

// Package focuser implements the graph-focusing garbage collector. It
// prunes the evaluation graph down to the minimum subgraph that keeps
// incremental builds correct for a set of actively edited files, while
// leaving behind enough filesystem-witness nodes for an external checker
// to detect changes outside those files.
package focuser

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/willf/bloom"

	"github.com/tomal07/bazel/actioncache"
	"github.com/tomal07/bazel/entities/concurrency"
	"github.com/tomal07/bazel/entities/errorcompounder"
	"github.com/tomal07/bazel/entities/evalkey"
	"github.com/tomal07/bazel/entities/keyset"
	"github.com/tomal07/bazel/graph"
	"github.com/tomal07/bazel/usecases/monitoring"
)

const (
	DefaultRdepWarnThreshold = 10_000
	DefaultDepWarnThreshold  = 10_000

	// sizing for the seen-filter in front of the verification dedup set
	seenFilterCapacity = 1 << 20
	seenFilterFPRate   = 0.01
)

type Config struct {
	Graph *graph.Graph

	// ActionCache is optional. When set, deleting a node whose value
	// carries actions evicts every action output from it.
	ActionCache actioncache.Cache

	Logger            logrus.FieldLogger
	PrometheusMetrics *monitoring.PrometheusMetrics

	// Parallelism bounds the visitor pool. Zero means the context
	// concurrency budget, falling back to the number of CPU cores.
	Parallelism int

	// KeepAlive is how long idle pool workers stick around.
	KeepAlive time.Duration

	RdepWarnThreshold int
	DepWarnThreshold  int
}

func (c *Config) Validate() error {
	ec := errorcompounder.New()
	if c.Graph == nil {
		ec.Addf("graph is required")
	}
	if c.Parallelism < 0 {
		ec.Addf("parallelism must not be negative: %d", c.Parallelism)
	}
	if c.RdepWarnThreshold < 0 || c.DepWarnThreshold < 0 {
		ec.Addf("warning thresholds must not be negative")
	}
	return ec.ToError()
}

func (c *Config) SetDefaults() {
	if c.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		c.Logger = l
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.RdepWarnThreshold == 0 {
		c.RdepWarnThreshold = DefaultRdepWarnThreshold
	}
	if c.DepWarnThreshold == 0 {
		c.DepWarnThreshold = DefaultDepWarnThreshold
	}
}

// Focuser runs focus operations against a single graph. It holds no
// per-run state; a fresh marker and pool are created per call.
type Focuser struct {
	graph       *graph.Graph
	actionCache actioncache.Cache
	logger      logrus.FieldLogger
	metrics     *Metrics

	parallelism       int
	keepAlive         time.Duration
	rdepWarnThreshold int
	depWarnThreshold  int
}

func New(cfg Config) (*Focuser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "focuser config")
	}
	cfg.SetDefaults()

	return &Focuser{
		graph:             cfg.Graph,
		actionCache:       cfg.ActionCache,
		logger:            cfg.Logger.WithField("component", "focuser"),
		metrics:           NewMetrics(cfg.PrometheusMetrics),
		parallelism:       cfg.Parallelism,
		keepAlive:         cfg.KeepAlive,
		rdepWarnThreshold: cfg.RdepWarnThreshold,
		depWarnThreshold:  cfg.DepWarnThreshold,
	}, nil
}

// Focus prunes the graph in place and returns the kept key sets. roots
// are top-level keys protected from pruning, leaves are the active
// directories. Every leaf must have a node entry. On error or caller
// cancellation the graph is left in an intermediate state and should be
// discarded.
func Focus(
	ctx context.Context,
	g *graph.Graph,
	cache actioncache.Cache,
	roots, leaves []evalkey.Key,
) (*FocusResult, error) {
	f, err := New(Config{Graph: g, ActionCache: cache})
	if err != nil {
		return nil, err
	}
	return f.Focus(ctx, roots, leaves)
}

func (f *Focuser) Focus(ctx context.Context, roots, leaves []evalkey.Key) (*FocusResult, error) {
	logger := f.logger.WithField("run_id", uuid.New().String())

	keptRdeps := keyset.New()
	keptDeps := keyset.New()
	verificationSet := keyset.New()
	verificationSetSeen := keyset.New()

	// All leaves are rdeps by definition. Roots are deps so that keys
	// re-evaluated on every build survive even outside the leaves'
	// reverse closure; a key that is both is treated as an rdep.
	keptRdeps.InsertAll(leaves...)
	keptDeps.InsertAll(roots...)

	parallelism := f.parallelism
	if parallelism == 0 {
		parallelism = concurrency.BudgetFromCtx(ctx, concurrency.NUMCPU)
	}

	pool := newVisitorPool(ctx, parallelism, f.keepAlive, logger)

	m := &marker{
		graph:               f.graph,
		pool:                pool,
		logger:              logger,
		metrics:             f.metrics,
		rdepWarnThreshold:   f.rdepWarnThreshold,
		depWarnThreshold:    f.depWarnThreshold,
		keptRdeps:           keptRdeps,
		keptDeps:            keptDeps,
		verificationSet:     verificationSet,
		verificationSetSeen: verificationSetSeen,
		seenFilter:          bloom.NewWithEstimates(seenFilterCapacity, seenFilterFPRate),
	}

	markStart := time.Now()
	for _, leaf := range leaves {
		leaf := leaf
		pool.Execute(func() error {
			return m.visitNode(leaf)
		})
	}

	// The pool stays alive: verification collection reuses it and must
	// also have quiesced by now.
	if err := pool.AwaitQuiescence(); err != nil {
		pool.Shutdown()
		return nil, f.classify(err, "mark")
	}

	markTook := time.Since(markStart)
	f.metrics.MarkFinished(markTook)
	logger.WithField("action", "focus_mark").
		WithField("took", markTook).
		WithField("rdeps", keptRdeps.Len()).
		WithField("deps", keptDeps.Len()).
		Debug("mark phase finished")

	// The upward closure dominates the partition, and the verification
	// set must not shadow anything already protected.
	keptDeps.SubtractAll(keptRdeps)
	verificationSet.SubtractAll(keptDeps)
	verificationSet.SubtractAll(keptRdeps)

	var rdepEdgesBefore, rdepEdgesAfter atomic.Int64

	sweepStart := time.Now()
	sweepErr := f.sweep(ctx, keptRdeps, keptDeps, verificationSet, &rdepEdgesBefore, &rdepEdgesAfter)
	pool.Shutdown()
	if sweepErr != nil {
		return nil, f.classify(sweepErr, "sweep")
	}

	sweepTook := time.Since(sweepStart)
	f.metrics.SweepFinished(sweepTook)
	logger.WithField("action", "focus_sweep").
		WithField("took", sweepTook).
		WithField("nodes", f.graph.Len()).
		WithField("rdep_edges_before", rdepEdgesBefore.Load()).
		WithField("rdep_edges_after", rdepEdgesAfter.Load()).
		Debug("sweep phase finished")

	return &FocusResult{
		Roots:           keyset.ImmutableOf(roots...),
		Leaves:          keyset.ImmutableOf(leaves...),
		Rdeps:           keptRdeps.Freeze(),
		Deps:            keptDeps.Freeze(),
		VerificationSet: verificationSet.Freeze(),
		RdepEdgesBefore: rdepEdgesBefore.Load(),
		RdepEdgesAfter:  rdepEdgesAfter.Load(),
	}, nil
}

func (f *Focuser) classify(err error, phase string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(err, "focus interrupted during %s", phase)
	}
	return errors.Wrapf(err, "focus %s", phase)
}
