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
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomal07/bazel/entities/evalkey"
	"github.com/tomal07/bazel/entities/keyset"
	"github.com/tomal07/bazel/graph"
)

func target(label string) evalkey.TargetKey {
	return evalkey.TargetKey{Label: label}
}

func ct(label string) evalkey.ConfiguredTargetKey {
	return evalkey.ConfiguredTargetKey{Label: label, Config: "k8"}
}

func file(path string) evalkey.FileStateKey {
	return evalkey.FileStateKey{RootedPath: path}
}

func newFocusGraph(t *testing.T) *graph.Graph {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return graph.New(graph.Config{Logger: logger})
}

func addNodes(t *testing.T, g *graph.Graph, keys ...evalkey.Key) {
	t.Helper()
	for _, k := range keys {
		g.GetOrCreate(k)
	}
}

func addEdges(t *testing.T, g *graph.Graph, edges ...[2]evalkey.Key) {
	t.Helper()
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
}

func markAllDone(g *graph.Graph) {
	for _, k := range g.Keys() {
		entry, _ := g.Get(k)
		entry.MarkDone()
	}
}

func keysOf(s *keyset.Immutable) []string {
	names := make([]string, 0, s.Len())
	for _, k := range s.Keys() {
		names = append(names, k.CanonicalName())
	}
	return names
}

// countingCache records every eviction so tests can assert exactly-once
// semantics.
type countingCache struct {
	sync.Mutex
	removals map[string]int
}

func newCountingCache() *countingCache {
	return &countingCache{removals: map[string]int{}}
}

func (c *countingCache) Remove(execPath string) {
	c.Lock()
	defer c.Unlock()
	c.removals[execPath]++
}

func TestFocus_LinearChain(t *testing.T) {
	// R -> M -> L
	g := newFocusGraph(t)
	r, m, l := target("//top:r"), ct("//pkg:m"), file("src/l.go")
	addNodes(t, g, r, m, l)
	addEdges(t, g, [2]evalkey.Key{r, m}, [2]evalkey.Key{m, l})
	markAllDone(g)

	res, err := Focus(context.Background(), g, nil, []evalkey.Key{r}, []evalkey.Key{l})
	require.NoError(t, err)

	assert.True(t, res.Rdeps.Equal(keyset.ImmutableOf(l, m, r)), "rdeps: %v", keysOf(res.Rdeps))
	assert.Equal(t, 0, res.Deps.Len(), "deps: %v", keysOf(res.Deps))
	assert.Equal(t, 0, res.VerificationSet.Len())

	// the whole chain survives with its rdep edges intact
	for _, k := range []evalkey.Key{r, m, l} {
		_, ok := g.Get(k)
		require.True(t, ok)
	}
	mEntry, _ := g.Get(m)
	assert.Equal(t, []evalkey.Key{r}, mEntry.ReverseDepsDone())
	lEntry, _ := g.Get(l)
	assert.Equal(t, []evalkey.Key{m}, lEntry.ReverseDepsDone())
}

func TestFocus_DiamondWithExternalWitness(t *testing.T) {
	// R -> {A, B}, both -> L and -> W, W outside the active directories
	g := newFocusGraph(t)
	r, a, b := target("//top:r"), ct("//pkg:a"), ct("//pkg:b")
	l, w := file("src/l.go"), file("third_party/w.go")
	addNodes(t, g, r, a, b, l, w)
	addEdges(t, g,
		[2]evalkey.Key{r, a}, [2]evalkey.Key{r, b},
		[2]evalkey.Key{a, l}, [2]evalkey.Key{a, w},
		[2]evalkey.Key{b, l}, [2]evalkey.Key{b, w},
	)
	markAllDone(g)

	res, err := Focus(context.Background(), g, nil, []evalkey.Key{r}, []evalkey.Key{l})
	require.NoError(t, err)

	assert.True(t, res.Rdeps.Equal(keyset.ImmutableOf(l, a, b, r)), "rdeps: %v", keysOf(res.Rdeps))
	assert.Equal(t, 0, res.Deps.Len(), "deps: %v", keysOf(res.Deps))
	assert.True(t, res.VerificationSet.Equal(keyset.ImmutableOf(w)),
		"verification set: %v", keysOf(res.VerificationSet))

	// the witness is flattened to a leaf
	wEntry, ok := g.Get(w)
	require.True(t, ok)
	assert.Empty(t, wEntry.ReverseDepsDone())

	assert.Equal(t, int64(2), res.RdepEdgesBefore)
	assert.Equal(t, int64(0), res.RdepEdgesAfter)
}

func TestFocus_UnrelatedSubgraphPruned(t *testing.T) {
	g := newFocusGraph(t)
	r, m, l := target("//top:r"), ct("//pkg:m"), file("src/l.go")
	u := ct("//unrelated:u")
	addNodes(t, g, r, m, l, u)
	addEdges(t, g, [2]evalkey.Key{r, m}, [2]evalkey.Key{m, l})

	uEntry, _ := g.Get(u)
	uEntry.SetValue(evalkey.NewActionsValue(
		evalkey.NewAction("Compile", evalkey.NewArtifact("out/u.o")),
		evalkey.NewAction("Link", evalkey.NewArtifact("out/u")),
	))
	markAllDone(g)

	cache := newCountingCache()
	res, err := Focus(context.Background(), g, cache, []evalkey.Key{r}, []evalkey.Key{l})
	require.NoError(t, err)

	_, ok := g.Get(u)
	assert.False(t, ok, "unrelated node must be deleted")
	assert.False(t, res.Rdeps.Contains(u))
	assert.False(t, res.Deps.Contains(u))
	assert.False(t, res.VerificationSet.Contains(u))

	assert.Equal(t, 1, cache.removals["out/u.o"])
	assert.Equal(t, 1, cache.removals["out/u"])
}

func TestFocus_CheckDependenciesRecovery(t *testing.T) {
	// as the linear chain, but M is re-checking its dependencies
	g := newFocusGraph(t)
	r, m, l := target("//top:r"), ct("//pkg:m"), file("src/l.go")
	addNodes(t, g, r, m, l)
	addEdges(t, g, [2]evalkey.Key{r, m}, [2]evalkey.Key{m, l})

	rEntry, _ := g.Get(r)
	rEntry.MarkDone()
	lEntry, _ := g.Get(l)
	lEntry.MarkDone()
	mEntry, _ := g.Get(m)
	mEntry.MarkCheckDependencies()

	res, err := Focus(context.Background(), g, nil, []evalkey.Key{r}, []evalkey.Key{l})
	require.NoError(t, err)

	// the traversal must not propagate through M
	assert.True(t, res.Rdeps.Equal(keyset.ImmutableOf(l)), "rdeps: %v", keysOf(res.Rdeps))
	assert.True(t, res.Deps.Equal(keyset.ImmutableOf(r)))

	// M is not done, so it stays in the graph
	_, ok := g.Get(m)
	assert.True(t, ok)
}

func TestFocus_NestedArtifactSetExpansion(t *testing.T) {
	g := newFocusGraph(t)
	r := target("//top:r")
	a1, a2 := evalkey.ArtifactKey{ExecPath: "out/a1.o"}, evalkey.ArtifactKey{ExecPath: "out/a2.o"}
	n := evalkey.NewNestedArtifactSetKey("link-inputs", a1, a2)
	w1 := file("third_party/w1.go")
	addNodes(t, g, r, n, a1, a2, w1)
	addEdges(t, g,
		[2]evalkey.Key{r, n},
		[2]evalkey.Key{n, a1}, [2]evalkey.Key{n, a2},
		[2]evalkey.Key{a1, w1},
	)
	markAllDone(g)

	// degenerate: the root is also the only leaf
	res, err := Focus(context.Background(), g, nil, []evalkey.Key{r}, []evalkey.Key{r})
	require.NoError(t, err)

	assert.True(t, res.Rdeps.Equal(keyset.ImmutableOf(r)))
	for _, k := range []evalkey.Key{n, a1, a2} {
		assert.Truef(t, res.Deps.Contains(k), "deps must contain %s, got %v",
			k.CanonicalName(), keysOf(res.Deps))
	}
	assert.True(t, res.VerificationSet.Contains(w1),
		"verification set: %v", keysOf(res.VerificationSet))

	// expanded artifacts became frontiers
	a1Entry, _ := g.Get(a1)
	assert.Empty(t, a1Entry.DirectDeps())
}

func TestFocus_Idempotence(t *testing.T) {
	g := newFocusGraph(t)
	r, a, b := target("//top:r"), ct("//pkg:a"), ct("//pkg:b")
	l, w := file("src/l.go"), file("third_party/w.go")
	addNodes(t, g, r, a, b, l, w)
	addEdges(t, g,
		[2]evalkey.Key{r, a}, [2]evalkey.Key{r, b},
		[2]evalkey.Key{a, l}, [2]evalkey.Key{a, w},
		[2]evalkey.Key{b, l}, [2]evalkey.Key{b, w},
	)
	markAllDone(g)

	roots, leaves := []evalkey.Key{r}, []evalkey.Key{l}

	first, err := Focus(context.Background(), g, nil, roots, leaves)
	require.NoError(t, err)

	second, err := Focus(context.Background(), g, nil, roots, leaves)
	require.NoError(t, err)

	assert.True(t, first.Rdeps.Equal(second.Rdeps))
	assert.True(t, first.Deps.Equal(second.Deps))
	assert.True(t, first.VerificationSet.Equal(second.VerificationSet))
	assert.True(t, first.Roots.Equal(second.Roots))
	assert.True(t, first.Leaves.Equal(second.Leaves))

	assert.LessOrEqual(t, second.RdepEdgesBefore, first.RdepEdgesBefore)
	// the second sweep finds nothing left to trim
	assert.Equal(t, second.RdepEdgesBefore, second.RdepEdgesAfter)
}

func TestFocus_MissingLeafIsFatal(t *testing.T) {
	g := newFocusGraph(t)
	r := target("//top:r")
	addNodes(t, g, r)
	markAllDone(g)

	missing := file("src/not-in-graph.go")
	_, err := Focus(context.Background(), g, nil, []evalkey.Key{r}, []evalkey.Key{missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingNode)
	assert.Contains(t, err.Error(), missing.CanonicalName())
}

func TestFocus_NotDoneNodeIsFatal(t *testing.T) {
	g := newFocusGraph(t)
	m, l := ct("//pkg:m"), file("src/l.go")
	addNodes(t, g, m, l)
	addEdges(t, g, [2]evalkey.Key{m, l})

	lEntry, _ := g.Get(l)
	lEntry.MarkDone()
	// m stays in NeedsRebuilding

	_, err := Focus(context.Background(), g, nil, nil, []evalkey.Key{l})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDone)
	assert.Contains(t, err.Error(), m.CanonicalName())
}

func TestFocus_InterruptSurfaces(t *testing.T) {
	g := newFocusGraph(t)
	l := file("src/l.go")
	addNodes(t, g, l)
	markAllDone(g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Focus(ctx, g, nil, nil, []evalkey.Key{l})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestFocus_FanoutWarning(t *testing.T) {
	g := newFocusGraph(t)
	l := file("src/l.go")
	parents := make([]evalkey.Key, 3)
	addNodes(t, g, l)
	for i := range parents {
		parents[i] = ct(fmt.Sprintf("//pkg:p%d", i))
		addNodes(t, g, parents[i])
		addEdges(t, g, [2]evalkey.Key{parents[i], l})
	}
	markAllDone(g)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f, err := New(Config{
		Graph:             g,
		Logger:            logger,
		RdepWarnThreshold: 2,
	})
	require.NoError(t, err)

	_, err = f.Focus(context.Background(), nil, []evalkey.Key{l})
	require.NoError(t, err)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, l.CanonicalName()) &&
			strings.Contains(e.Message, "3 rdeps") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a fan-out warning for %s", l.CanonicalName())
}

func TestFocus_ConfigValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph is required")

	g := newFocusGraph(t)
	_, err = New(Config{Graph: g, Parallelism: -1})
	require.Error(t, err)
}

// buildLayeredDAG creates a random layered build graph: layer 0 is all
// source files, upper layers are configured targets depending only on
// strictly lower layers. Every node is done; every third target carries
// actions.
func buildLayeredDAG(t *testing.T, g *graph.Graph, rng *rand.Rand, layers, perLayer int) [][]evalkey.Key {
	t.Helper()

	nodes := make([][]evalkey.Key, layers)
	for i := 0; i < perLayer; i++ {
		k := file(fmt.Sprintf("src/f%d.go", i))
		nodes[0] = append(nodes[0], k)
		g.GetOrCreate(k)
	}
	for layer := 1; layer < layers; layer++ {
		for i := 0; i < perLayer; i++ {
			k := ct(fmt.Sprintf("//l%d:t%d", layer, i))
			nodes[layer] = append(nodes[layer], k)
			entry := g.GetOrCreate(k)
			if i%3 == 0 {
				entry.SetValue(evalkey.NewActionsValue(
					evalkey.NewAction("Compile", evalkey.NewArtifact(fmt.Sprintf("out/l%d/t%d.o", layer, i))),
				))
			}

			deps := 1 + rng.Intn(4)
			for d := 0; d < deps; d++ {
				lower := rng.Intn(layer)
				dep := nodes[lower][rng.Intn(perLayer)]
				require.NoError(t, g.AddEdge(k, dep))
			}
		}
	}
	markAllDone(g)
	return nodes
}

func TestFocus_PropertiesOnRandomDAG(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		seed := seed
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			g := newFocusGraph(t)
			rng := rand.New(rand.NewSource(seed))
			nodes := buildLayeredDAG(t, g, rng, 6, 25)

			var leaves, roots []evalkey.Key
			for i := 0; i < 5; i++ {
				leaves = append(leaves, nodes[0][rng.Intn(len(nodes[0]))])
			}
			top := len(nodes) - 1
			for i := 0; i < 3; i++ {
				roots = append(roots, nodes[top][rng.Intn(len(nodes[top]))])
			}

			cache := newCountingCache()
			res, err := Focus(context.Background(), g, cache, roots, leaves)
			require.NoError(t, err)

			t.Run("partition", func(t *testing.T) {
				for _, k := range res.Rdeps.Keys() {
					assert.False(t, res.Deps.Contains(k))
					assert.False(t, res.VerificationSet.Contains(k))
				}
				for _, k := range res.Deps.Keys() {
					assert.False(t, res.VerificationSet.Contains(k))
				}
			})

			t.Run("leaf_preservation", func(t *testing.T) {
				for _, l := range leaves {
					assert.True(t, res.Rdeps.Contains(l))
				}
			})

			t.Run("root_preservation", func(t *testing.T) {
				for _, r := range roots {
					assert.True(t, res.Deps.Contains(r) || res.Rdeps.Contains(r))
				}
			})

			t.Run("edge_retention", func(t *testing.T) {
				for _, k := range g.Keys() {
					entry, _ := g.Get(k)
					if !entry.IsDone() {
						continue
					}
					for _, rdep := range entry.ReverseDepsDone() {
						assert.Truef(t, res.Rdeps.Contains(rdep),
							"node %s retains rdep %s outside the kept rdeps",
							k.CanonicalName(), rdep.CanonicalName())
					}
				}
			})

			t.Run("deps_are_frontiers", func(t *testing.T) {
				for _, k := range res.Deps.Keys() {
					entry, ok := g.Get(k)
					if !ok {
						continue
					}
					assert.Empty(t, entry.DirectDeps())
				}
			})

			t.Run("verification_flatness", func(t *testing.T) {
				for _, k := range res.VerificationSet.Keys() {
					entry, ok := g.Get(k)
					require.Truef(t, ok, "witness %s must survive", k.CanonicalName())
					assert.Empty(t, entry.ReverseDepsDone())
				}
			})

			t.Run("retention_matches_result_sets", func(t *testing.T) {
				for _, k := range g.Keys() {
					inSets := res.Rdeps.Contains(k) || res.Deps.Contains(k) ||
						res.VerificationSet.Contains(k)
					entry, _ := g.Get(k)
					assert.Truef(t, inSets || !entry.IsDone(),
						"retained node %s is in no kept set", k.CanonicalName())
				}
			})

			t.Run("action_cache_exactly_once", func(t *testing.T) {
				for path, count := range cache.removals {
					assert.Equalf(t, 1, count, "output %s evicted %d times", path, count)
				}
			})

			t.Run("edge_count_bound", func(t *testing.T) {
				assert.GreaterOrEqual(t, res.RdepEdgesBefore, res.RdepEdgesAfter)
				assert.GreaterOrEqual(t, res.RdepEdgesAfter, int64(0))
			})

			t.Run("kept_sets_stable_on_rerun", func(t *testing.T) {
				second, err := Focus(context.Background(), g, cache, roots, leaves)
				require.NoError(t, err)

				assert.True(t, res.Rdeps.Equal(second.Rdeps))
				assert.True(t, res.Deps.Equal(second.Deps))
				// witnesses found through pruned intermediate nodes are
				// only discoverable on the first run
				for _, k := range second.VerificationSet.Keys() {
					assert.True(t, res.VerificationSet.Contains(k))
				}
				assert.LessOrEqual(t, second.RdepEdgesBefore, res.RdepEdgesBefore)
				assert.Equal(t, second.RdepEdgesBefore, second.RdepEdgesAfter)
			})
		})
	}
}
