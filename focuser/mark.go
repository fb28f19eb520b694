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
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/willf/bloom"

	"github.com/tomal07/bazel/entities/evalkey"
	"github.com/tomal07/bazel/entities/keyset"
	"github.com/tomal07/bazel/graph"
)

// marker owns the state of the upward mark traversal and the downward
// verification collection it spawns. Both run on the same visitor pool;
// the concurrent kept sets serialize the traversals so every key is
// visited at most once.
type marker struct {
	graph   *graph.Graph
	pool    *visitorPool
	logger  logrus.FieldLogger
	metrics *Metrics

	rdepWarnThreshold int
	depWarnThreshold  int

	keptRdeps           *keyset.Set
	keptDeps            *keyset.Set
	verificationSet     *keyset.Set
	verificationSetSeen *keyset.Set

	// seenFilter fronts verificationSetSeen: a negative probe skips the
	// exact-set lookup on the collection hot path. Exactness is
	// preserved, the sharded set stays authoritative.
	seenFilterMu sync.RWMutex
	seenFilter   *bloom.BloomFilter
}

// visitNode marks the reverse closure of a single key. Newly discovered
// rdeps are enqueued as further visits; direct deps are collected as
// frontier deps and handed to the verification collector.
func (m *marker) visitNode(key evalkey.Key) error {
	entry, ok := m.graph.Get(key)
	if !ok {
		// The active directories may be defined more loosely than the
		// roots' transitive closure, but skipping silently would hide
		// real misconfigurations. Stay strict.
		return errors.Wrap(ErrMissingNode, key.CanonicalName())
	}

	if !entry.IsDone() {
		if entry.LifecycleState() == graph.CheckDependencies {
			// A build-id bump invalidates the whole reverse closure and
			// some of it may legitimately stay unevaluated. Demote the
			// key out of the kept rdeps and keep the node for the next
			// build.
			m.keptRdeps.Remove(key)
			return nil
		}

		return errors.Wrap(ErrNotDone, key.CanonicalName())
	}

	rdepCount := 0
	for _, rdep := range entry.ReverseDepsDone() {
		rdepCount++
		if !m.keptRdeps.Insert(rdep) {
			// already visited
			continue
		}

		rdep := rdep
		m.pool.Execute(func() error {
			return m.visitNode(rdep)
		})
	}
	if rdepCount > m.rdepWarnThreshold {
		m.metrics.RdepFanoutWarning()
		m.logger.WithField("key", key.CanonicalName()).
			WithField("rdeps", rdepCount).
			Warnf("%s has %d rdeps, which is more than the threshold at %d",
				key.CanonicalName(), rdepCount, m.rdepWarnThreshold)
	}

	depCount := 0
	for _, dep := range entry.DirectDeps() {
		depCount++
		m.addDep(dep)
	}
	if depCount > m.depWarnThreshold {
		m.metrics.DepFanoutWarning()
		m.logger.WithField("key", key.CanonicalName()).
			WithField("deps", depCount).
			Warnf("%s has %d deps, which is more than the threshold at %d",
				key.CanonicalName(), depCount, m.depWarnThreshold)
	}

	return nil
}

// addDep records one dependency of a marked node. Filesystem-witness
// keys go to the verification collector instead of the frontier, so the
// external checker still sees them while the frontier stays free of
// witness state. Nested artifact sets are expanded because evaluations
// consume their members without registering per-artifact edges.
func (m *marker) addDep(dep evalkey.Key) {
	if evalkey.IsFilesystemWitness(dep) {
		m.maybeCollectVerification(dep)
		return
	}

	if !m.keptDeps.Insert(dep) {
		// already collected
		return
	}

	m.maybeCollectVerification(dep)

	if nested, ok := dep.(evalkey.NestedArtifactSet); ok {
		for _, a := range nested.ExpandToArtifacts() {
			m.addDep(a)
		}
	}
}
