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

package graph

import (
	"fmt"

	"github.com/tomal07/bazel/entities/evalkey"
)

// LifecycleState describes how far a node entry has progressed in the
// current build.
type LifecycleState uint8

const (
	// NeedsRebuilding is the state of a node that was invalidated and
	// has not started re-evaluation.
	NeedsRebuilding LifecycleState = iota

	// CheckDependencies is the state of a node whose dependencies are
	// being re-checked after an invalidation. Such nodes may legitimately
	// stay in this state for the whole build.
	CheckDependencies

	// Done means the value and both edge sets are finalized.
	Done
)

func (s LifecycleState) String() string {
	switch s {
	case NeedsRebuilding:
		return "needs_rebuilding"
	case CheckDependencies:
		return "check_dependencies"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// NodeEntry is the per-key state held by the evaluation graph: lifecycle,
// value and both edge sets. The graph owns entries exclusively; the
// focuser borrows them for reads during mark and for scoped mutation
// during sweep. Mutation of a single entry is confined to one goroutine,
// ConsolidateReverseDeps is the point at which batched edge removals are
// published.
type NodeEntry struct {
	key   evalkey.Key
	state LifecycleState
	value evalkey.Value

	directDeps  []evalkey.Key
	reverseDeps []evalkey.Key

	// rdep removals are batched and applied on consolidation
	pendingRdepRemovals map[evalkey.Key]struct{}
}

func NewNodeEntry(key evalkey.Key) *NodeEntry {
	return &NodeEntry{key: key, state: NeedsRebuilding}
}

func (n *NodeEntry) Key() evalkey.Key {
	return n.key
}

func (n *NodeEntry) IsDone() bool {
	return n.state == Done
}

func (n *NodeEntry) LifecycleState() LifecycleState {
	return n.state
}

func (n *NodeEntry) Value() evalkey.Value {
	return n.value
}

func (n *NodeEntry) SetValue(v evalkey.Value) {
	n.value = v
}

func (n *NodeEntry) MarkDone() {
	n.state = Done
}

func (n *NodeEntry) MarkCheckDependencies() {
	n.state = CheckDependencies
}

func (n *NodeEntry) MarkNeedsRebuilding() {
	n.state = NeedsRebuilding
}

// DirectDeps returns the outgoing edges. The returned slice is the
// entry's own storage and must not be mutated by the caller.
func (n *NodeEntry) DirectDeps() []evalkey.Key {
	return n.directDeps
}

// ReverseDepsDone returns the incoming edges of a finished node. Pending
// removals are not reflected until ConsolidateReverseDeps runs.
func (n *NodeEntry) ReverseDepsDone() []evalkey.Key {
	if n.state != Done {
		panic(fmt.Sprintf("reverse deps requested for unfinished node: %s (%s)",
			n.key.CanonicalName(), n.state))
	}
	return n.reverseDeps
}

func (n *NodeEntry) AddDirectDep(k evalkey.Key) {
	n.directDeps = append(n.directDeps, k)
}

func (n *NodeEntry) AddReverseDep(k evalkey.Key) {
	n.reverseDeps = append(n.reverseDeps, k)
}

// ClearDirectDepsForFocus drops all outgoing edges. Used on frontier
// nodes which will never be dirtied again.
func (n *NodeEntry) ClearDirectDepsForFocus() {
	n.directDeps = nil
}

// RemoveReverseDep marks one incoming edge for removal. The removal is
// not visible to readers until ConsolidateReverseDeps is called.
func (n *NodeEntry) RemoveReverseDep(k evalkey.Key) {
	if n.pendingRdepRemovals == nil {
		n.pendingRdepRemovals = map[evalkey.Key]struct{}{}
	}
	n.pendingRdepRemovals[k] = struct{}{}
}

// ConsolidateReverseDeps applies the batched removals and normalizes the
// internal representation. Must be called after a non-empty batch,
// otherwise subsequent reads see stale edges.
func (n *NodeEntry) ConsolidateReverseDeps() {
	if len(n.pendingRdepRemovals) == 0 {
		return
	}

	kept := n.reverseDeps[:0]
	for _, r := range n.reverseDeps {
		if _, drop := n.pendingRdepRemovals[r]; !drop {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(n.reverseDeps); i++ {
		n.reverseDeps[i] = nil
	}
	n.reverseDeps = kept
	n.pendingRdepRemovals = nil
}
