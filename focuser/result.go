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

import "github.com/tomal07/bazel/entities/keyset"

// FocusResult is an immutable snapshot of a completed focus run. The
// actual pruning happened in place on the graph.
type FocusResult struct {
	// Roots and Leaves echo the inputs.
	Roots  *keyset.Immutable
	Leaves *keyset.Immutable

	// Rdeps is the reverse transitive closure of the leaves.
	Rdeps *keyset.Immutable

	// Deps are the roots plus the frontier dependencies of the kept
	// reverse closure, including members of expanded artifact sets, minus
	// anything in Rdeps.
	Deps *keyset.Immutable

	// VerificationSet holds the filesystem-witness keys retained for the
	// external change checker.
	VerificationSet *keyset.Immutable

	// Reverse-edge totals across the nodes rewritten by the sweep,
	// before and after edge removal.
	RdepEdgesBefore int64
	RdepEdgesAfter  int64
}
