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

package keyset

import "github.com/tomal07/bazel/entities/evalkey"

// Immutable is a frozen key set, ordered by canonical name.
type Immutable struct {
	members map[evalkey.Key]struct{}
	sorted  []evalkey.Key
}

// ImmutableOf builds a snapshot from an explicit key list.
func ImmutableOf(keys ...evalkey.Key) *Immutable {
	s := New()
	s.InsertAll(keys...)
	return s.Freeze()
}

func (i *Immutable) Contains(k evalkey.Key) bool {
	_, ok := i.members[k]
	return ok
}

func (i *Immutable) Len() int {
	return len(i.sorted)
}

// Keys returns the members sorted by canonical name. The caller must
// not mutate the returned slice.
func (i *Immutable) Keys() []evalkey.Key {
	return i.sorted
}

func (i *Immutable) Equal(other *Immutable) bool {
	if i.Len() != other.Len() {
		return false
	}
	for _, k := range i.sorted {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}
