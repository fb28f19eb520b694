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

// Package graph implements the persistent in-memory evaluation graph: a
// sharded index of node entries keyed by canonical name, with parallel
// iteration, targeted removal and post-deletion compaction.
package graph

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"

	"github.com/tomal07/bazel/entities/concurrency"
	enterrors "github.com/tomal07/bazel/entities/errors"
	"github.com/tomal07/bazel/entities/evalkey"
	"github.com/tomal07/bazel/usecases/monitoring"
)

const DefaultShardCount = 128

type Config struct {
	Logger            logrus.FieldLogger
	ShardCount        int
	PrometheusMetrics *monitoring.PrometheusMetrics
}

func (c *Config) SetDefaults() {
	if c.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		c.Logger = l
	}
	if c.ShardCount < 1 {
		c.ShardCount = DefaultShardCount
	}
}

type indexShard struct {
	sync.RWMutex
	entries map[evalkey.Key]*NodeEntry
}

// Graph is the thread-safe handle over all node entries.
type Graph struct {
	shards  []indexShard
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

func New(cfg Config) *Graph {
	cfg.SetDefaults()

	g := &Graph{
		shards:  make([]indexShard, cfg.ShardCount),
		logger:  cfg.Logger.WithField("component", "evalgraph"),
		metrics: cfg.PrometheusMetrics,
	}
	for i := range g.shards {
		g.shards[i].entries = map[evalkey.Key]*NodeEntry{}
	}
	return g
}

func (g *Graph) shardFor(k evalkey.Key) *indexShard {
	h := murmur3.Sum32([]byte(k.CanonicalName()))
	return &g.shards[int(h)%len(g.shards)]
}

// Get returns the node entry for k, if present.
func (g *Graph) Get(k evalkey.Key) (*NodeEntry, bool) {
	sh := g.shardFor(k)
	sh.RLock()
	defer sh.RUnlock()

	entry, ok := sh.entries[k]
	return entry, ok
}

// Put indexes an entry under its key, replacing any previous entry.
func (g *Graph) Put(entry *NodeEntry) {
	sh := g.shardFor(entry.Key())
	sh.Lock()
	_, existed := sh.entries[entry.Key()]
	sh.entries[entry.Key()] = entry
	sh.Unlock()

	if !existed && g.metrics != nil {
		g.metrics.GraphNodes.Inc()
	}
}

// GetOrCreate returns the entry for k, creating an empty one if needed.
func (g *Graph) GetOrCreate(k evalkey.Key) *NodeEntry {
	sh := g.shardFor(k)
	sh.Lock()
	entry, ok := sh.entries[k]
	if !ok {
		entry = NewNodeEntry(k)
		sh.entries[k] = entry
	}
	sh.Unlock()

	if !ok && g.metrics != nil {
		g.metrics.GraphNodes.Inc()
	}
	return entry
}

// Remove drops the entry for k from the index. Idempotent. Safe to call
// from a ParallelForEach visitor for the node currently being visited.
func (g *Graph) Remove(k evalkey.Key) {
	sh := g.shardFor(k)
	sh.Lock()
	_, existed := sh.entries[k]
	delete(sh.entries, k)
	sh.Unlock()

	if existed && g.metrics != nil {
		g.metrics.GraphNodes.Dec()
	}
}

func (g *Graph) Len() int {
	n := 0
	for i := range g.shards {
		g.shards[i].RLock()
		n += len(g.shards[i].entries)
		g.shards[i].RUnlock()
	}
	return n
}

// Keys returns all indexed keys sorted by canonical name.
func (g *Graph) Keys() []evalkey.Key {
	out := make([]evalkey.Key, 0, g.Len())
	for i := range g.shards {
		g.shards[i].RLock()
		for k := range g.shards[i].entries {
			out = append(out, k)
		}
		g.shards[i].RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalName() < out[j].CanonicalName()
	})
	return out
}

// AddEdge records a direct dep from -> to and the matching reverse dep,
// keeping the two edge sets symmetric. Both entries must exist.
func (g *Graph) AddEdge(from, to evalkey.Key) error {
	fromEntry, ok := g.Get(from)
	if !ok {
		return errors.Errorf("edge source not in graph: %s", from.CanonicalName())
	}
	toEntry, ok := g.Get(to)
	if !ok {
		return errors.Errorf("edge target not in graph: %s", to.CanonicalName())
	}

	fromEntry.AddDirectDep(to)
	toEntry.AddReverseDep(from)
	return nil
}

// ParallelForEach visits every node exactly once in unspecified order.
// Parallelism is bounded by the context concurrency budget, falling back
// to the number of CPU cores. The visitor may mutate the visited entry
// and may Remove it. The first visitor error cancels the iteration.
func (g *Graph) ParallelForEach(ctx context.Context, visitor func(*NodeEntry) error) error {
	eg := enterrors.NewErrorGroupWrapper(g.logger)
	eg.SetLimit(concurrency.BudgetFromCtx(ctx, concurrency.NUMCPU))

	var failed atomic.Bool

	for i := range g.shards {
		sh := &g.shards[i]

		sh.RLock()
		snapshot := make([]*NodeEntry, 0, len(sh.entries))
		for _, entry := range sh.entries {
			snapshot = append(snapshot, entry)
		}
		sh.RUnlock()

		if len(snapshot) == 0 {
			continue
		}

		eg.Go(func() error {
			for _, entry := range snapshot {
				if err := ctx.Err(); err != nil {
					return err
				}
				if failed.Load() {
					return nil
				}
				if err := visitor(entry); err != nil {
					failed.Store(true)
					return err
				}
			}
			return nil
		}, i)
	}

	return eg.Wait()
}

// Shrink compacts the shard maps after bulk deletions. Go maps do not
// release buckets on delete, so each shard is rebuilt at its current
// size. Not safe concurrently with other operations.
func (g *Graph) Shrink() {
	total := 0
	for i := range g.shards {
		sh := &g.shards[i]
		sh.Lock()
		compacted := make(map[evalkey.Key]*NodeEntry, len(sh.entries))
		for k, entry := range sh.entries {
			compacted[k] = entry
		}
		sh.entries = compacted
		total += len(compacted)
		sh.Unlock()
	}

	g.logger.WithField("action", "graph_shrink").
		WithField("nodes", total).
		Debug("compacted node index")
}
