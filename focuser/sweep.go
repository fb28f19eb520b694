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
	"context"
	"sync/atomic"

	"github.com/tomal07/bazel/entities/evalkey"
	"github.com/tomal07/bazel/entities/keyset"
	"github.com/tomal07/bazel/graph"
)

// sweep rewrites every surviving node: kept rdeps stay untouched, kept
// deps become frontiers, verification witnesses are flattened to leaves,
// unfinished nodes are preserved and everything else is deleted. Edge
// counters record the rdep edges seen and kept across frontier and
// witness nodes.
func (f *Focuser) sweep(
	ctx context.Context,
	keptRdeps, keptDeps, verificationSet *keyset.Set,
	rdepEdgesBefore, rdepEdgesAfter *atomic.Int64,
) error {
	err := f.graph.ParallelForEach(ctx, func(entry *graph.NodeEntry) error {
		key := entry.Key()

		if keptRdeps.Contains(key) {
			// Every rdep of a kept rdep is itself kept, so the edges of
			// these nodes stay valid as-is.
			return nil
		}

		if keptDeps.Contains(key) {
			// Frontier node. It will not be dirtied again, so the
			// outgoing edges carry no information. Incoming edges only
			// matter if they can propagate a dirty bit from the active
			// directories, i.e. point to a kept rdep.
			entry.ClearDirectDepsForFocus()

			existingRdeps := entry.ReverseDepsDone()
			rdepEdgesBefore.Add(int64(len(existingRdeps)))

			kept := 0
			for _, rdep := range existingRdeps {
				if keptRdeps.Contains(rdep) {
					kept++
				} else {
					entry.RemoveReverseDep(rdep)
				}
			}
			rdepEdgesAfter.Add(int64(kept))

			if removed := len(existingRdeps) - kept; removed > 0 {
				entry.ConsolidateReverseDeps()
				f.metrics.RdepEdgesRemoved(int64(removed))
			}
			return nil
		}

		if verificationSet.Contains(key) {
			// The filesystem checker needs the node, but only as a flat
			// leaf: all rdep edges point out of the focused subgraph.
			existingRdeps := entry.ReverseDepsDone()
			rdepEdgesBefore.Add(int64(len(existingRdeps)))

			for _, rdep := range existingRdeps {
				entry.RemoveReverseDep(rdep)
			}
			if len(existingRdeps) > 0 {
				entry.ConsolidateReverseDeps()
				f.metrics.RdepEdgesRemoved(int64(len(existingRdeps)))
			}
			return nil
		}

		if !entry.IsDone() {
			// Invalidated but not re-evaluated. May still be needed by a
			// subsequent build.
			return nil
		}

		if f.actionCache != nil {
			if alv, ok := entry.Value().(evalkey.ActionLookupValue); ok {
				for _, action := range alv.Actions() {
					for _, output := range action.Outputs() {
						f.actionCache.Remove(output.ExecPath())
					}
				}
			}
		}

		f.graph.Remove(key)
		f.metrics.NodeRemoved()
		return nil
	})
	if err != nil {
		return err
	}

	f.graph.Shrink()
	return nil
}
