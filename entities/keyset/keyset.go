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

// Package keyset provides sharded concurrent sets of evaluation-graph
// keys. Insert is atomic and reports novelty, which is the primitive the
// focuser's traversals rely on for at-most-once visits. A plain
// contains-then-insert would race under contention.
package keyset

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/tomal07/bazel/entities/evalkey"
)

const DefaultShardCount = 64

type shard struct {
	sync.RWMutex
	members map[evalkey.Key]struct{}
}

// Set is a sharded hash-set of keys. Shards are selected by the murmur3
// hash of the canonical name so hot key prefixes still spread out.
type Set struct {
	shards []shard
}

func New() *Set {
	return NewWithShardCount(DefaultShardCount)
}

func NewWithShardCount(n int) *Set {
	if n < 1 {
		n = 1
	}
	s := &Set{shards: make([]shard, n)}
	for i := range s.shards {
		s.shards[i].members = map[evalkey.Key]struct{}{}
	}
	return s
}

func (s *Set) shardFor(k evalkey.Key) *shard {
	h := murmur3.Sum32([]byte(k.CanonicalName()))
	return &s.shards[int(h)%len(s.shards)]
}

// Insert adds k and returns true iff it was not already a member.
func (s *Set) Insert(k evalkey.Key) bool {
	sh := s.shardFor(k)
	sh.Lock()
	defer sh.Unlock()

	if _, ok := sh.members[k]; ok {
		return false
	}
	sh.members[k] = struct{}{}
	return true
}

// Remove deletes k and returns true iff it was a member. It is safe
// under concurrent insert attempts on the same key.
func (s *Set) Remove(k evalkey.Key) bool {
	sh := s.shardFor(k)
	sh.Lock()
	defer sh.Unlock()

	if _, ok := sh.members[k]; !ok {
		return false
	}
	delete(sh.members, k)
	return true
}

func (s *Set) Contains(k evalkey.Key) bool {
	sh := s.shardFor(k)
	sh.RLock()
	defer sh.RUnlock()

	_, ok := sh.members[k]
	return ok
}

func (s *Set) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].RLock()
		n += len(s.shards[i].members)
		s.shards[i].RUnlock()
	}
	return n
}

// InsertAll seeds the set. Not atomic across keys.
func (s *Set) InsertAll(keys ...evalkey.Key) {
	for _, k := range keys {
		s.Insert(k)
	}
}

// SubtractAll removes every member of other from s.
func (s *Set) SubtractAll(other *Set) {
	for i := range other.shards {
		sh := &other.shards[i]
		sh.RLock()
		members := make([]evalkey.Key, 0, len(sh.members))
		for k := range sh.members {
			members = append(members, k)
		}
		sh.RUnlock()

		for _, k := range members {
			s.Remove(k)
		}
	}
}

// Keys returns a snapshot sorted by canonical name.
func (s *Set) Keys() []evalkey.Key {
	out := make([]evalkey.Key, 0, s.Len())
	for i := range s.shards {
		s.shards[i].RLock()
		for k := range s.shards[i].members {
			out = append(out, k)
		}
		s.shards[i].RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalName() < out[j].CanonicalName()
	})
	return out
}

// Freeze copies the current members into an immutable snapshot.
func (s *Set) Freeze() *Immutable {
	keys := s.Keys()
	members := make(map[evalkey.Key]struct{}, len(keys))
	for _, k := range keys {
		members[k] = struct{}{}
	}
	return &Immutable{members: members, sorted: keys}
}
