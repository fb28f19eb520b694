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
	"github.com/pkg/errors"

	"github.com/tomal07/bazel/entities/evalkey"
)

// maybeCollectVerification walks downward from a kept dependency and
// records every filesystem-witness key it can reach. Witnesses terminate
// the walk; everything else recurses through its direct deps via a pool
// task, never the call stack.
func (m *marker) maybeCollectVerification(k evalkey.Key) {
	if m.keptRdeps.Contains(k) {
		// in the active directories' reverse closure, already visited
		return
	}

	if evalkey.IsFilesystemWitness(k) {
		m.verificationSet.Insert(k)
		return
	}

	if m.seenBefore(k) {
		return
	}

	m.pool.Execute(func() error {
		return m.collectVerification(k)
	})
}

func (m *marker) collectVerification(k evalkey.Key) error {
	entry, ok := m.graph.Get(k)
	if !ok {
		return errors.Wrap(ErrMissingNode, k.CanonicalName())
	}

	for _, dep := range entry.DirectDeps() {
		m.maybeCollectVerification(dep)
	}
	return nil
}

// seenBefore reports whether k was already handed to the collector,
// recording it otherwise. A negative bloom probe skips the exact-set
// Contains lookup and goes straight to the insert; the sharded set
// remains the authority so a false positive costs one extra lookup,
// never a skipped subgraph.
func (m *marker) seenBefore(k evalkey.Key) bool {
	name := k.CanonicalName()

	m.seenFilterMu.RLock()
	maybeSeen := m.seenFilter.TestString(name)
	m.seenFilterMu.RUnlock()

	if maybeSeen && m.verificationSetSeen.Contains(k) {
		return true
	}

	if !m.verificationSetSeen.Insert(k) {
		return true
	}

	m.seenFilterMu.Lock()
	m.seenFilter.AddString(name)
	m.seenFilterMu.Unlock()
	return false
}
