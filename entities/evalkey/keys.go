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

// Package evalkey holds the key and value model of the evaluation graph.
// Keys are opaque, comparable identifiers with a canonical name. A subset
// of key kinds represents rooted filesystem state and is eligible for the
// verification set left behind by the focuser.
package evalkey

import "sync"

// Key identifies a node in the evaluation graph. Implementations must be
// comparable so that keys can be used in maps and sets. The canonical
// name is unique per key and defines the total order used for snapshots.
type Key interface {
	CanonicalName() string
}

// FilesystemWitness marks key kinds whose nodes mirror on-disk state.
// The focuser retains these keys in the verification set so that a
// filesystem checker can still detect changes outside the active
// directories after the graph has been pruned.
type FilesystemWitness interface {
	Key
	filesystemWitness()
}

// IsFilesystemWitness reports whether the key kind is eligible for the
// verification set. It is a pure function of the key's type.
func IsFilesystemWitness(k Key) bool {
	_, ok := k.(FilesystemWitness)
	return ok
}

// NestedArtifactSet is implemented by keys whose value is a compact
// transitive set of artifact references. Their members are consumed by
// evaluations without registering per-artifact graph edges, so the
// focuser expands them explicitly.
type NestedArtifactSet interface {
	Key
	ExpandToArtifacts() []Key
}

// FileStateKey represents the state of a single rooted path.
type FileStateKey struct {
	RootedPath string
}

func (k FileStateKey) CanonicalName() string { return "FILE_STATE:" + k.RootedPath }

func (k FileStateKey) filesystemWitness() {}

// DirectoryListingKey represents the listing state of a rooted directory.
type DirectoryListingKey struct {
	RootedPath string
}

func (k DirectoryListingKey) CanonicalName() string {
	return "DIRECTORY_LISTING:" + k.RootedPath
}

func (k DirectoryListingKey) filesystemWitness() {}

// TargetKey identifies a top-level target.
type TargetKey struct {
	Label string
}

func (k TargetKey) CanonicalName() string { return "TARGET:" + k.Label }

// ConfiguredTargetKey identifies a target analyzed under a configuration.
// Its node value is typically an ActionLookupValue.
type ConfiguredTargetKey struct {
	Label  string
	Config string
}

func (k ConfiguredTargetKey) CanonicalName() string {
	return "CONFIGURED_TARGET:" + k.Label + "@" + k.Config
}

// ArtifactKey identifies a produced or source artifact by exec path.
type ArtifactKey struct {
	ExecPath string
}

func (k ArtifactKey) CanonicalName() string { return "ARTIFACT:" + k.ExecPath }

// NestedArtifactSetKey names a shared artifact set. Identity is the set
// name alone: two keys constructed independently for the same name are
// ==, hash alike in maps, and expand to the same members. The member
// lists live in a package-level registry so the key stays a plain
// comparable value.
type NestedArtifactSetKey struct {
	Name string
}

func (k NestedArtifactSetKey) CanonicalName() string {
	return "ARTIFACT_NESTED_SET:" + k.Name
}

func (k NestedArtifactSetKey) ExpandToArtifacts() []Key {
	return nestedSets.members(k.Name)
}

// NewNestedArtifactSetKey registers the member list under name and
// returns its key. Re-registering a name replaces the members; callers
// rebuilding a key for an existing set pass the same list. The members
// are commonly ArtifactKeys, but source files may surface as
// FileStateKeys directly.
func NewNestedArtifactSetKey(name string, members ...Key) NestedArtifactSetKey {
	ms := make([]Key, len(members))
	copy(ms, members)
	nestedSets.put(name, ms)
	return NestedArtifactSetKey{Name: name}
}

var nestedSets = &nestedSetRegistry{sets: map[string][]Key{}}

type nestedSetRegistry struct {
	sync.RWMutex
	sets map[string][]Key
}

func (r *nestedSetRegistry) put(name string, members []Key) {
	r.Lock()
	defer r.Unlock()
	r.sets[name] = members
}

func (r *nestedSetRegistry) members(name string) []Key {
	r.RLock()
	defer r.RUnlock()

	members := r.sets[name]
	if len(members) == 0 {
		return nil
	}
	out := make([]Key, len(members))
	copy(out, members)
	return out
}
