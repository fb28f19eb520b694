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

package evalkey

// Value is the opaque result of evaluating a node. The focuser only ever
// inspects it for the ActionLookupValue variant.
type Value interface{}

// ActionLookupValue is implemented by values that own actions. When the
// focuser deletes a node carrying one, it evicts every action output
// from the action cache.
type ActionLookupValue interface {
	Actions() []Action
}

// Action describes a single registered action and its output artifacts.
type Action struct {
	Mnemonic string
	outputs  []Artifact
}

func NewAction(mnemonic string, outputs ...Artifact) Action {
	outs := make([]Artifact, len(outputs))
	copy(outs, outputs)
	return Action{Mnemonic: mnemonic, outputs: outs}
}

func (a Action) Outputs() []Artifact {
	return a.outputs
}

// Artifact is an action output addressed by its exec path.
type Artifact struct {
	execPath string
}

func NewArtifact(execPath string) Artifact {
	return Artifact{execPath: execPath}
}

func (a Artifact) ExecPath() string {
	return a.execPath
}

// ActionsValue is the basic ActionLookupValue implementation used by the
// evaluation engine for configured targets.
type ActionsValue struct {
	actions []Action
}

func NewActionsValue(actions ...Action) *ActionsValue {
	as := make([]Action, len(actions))
	copy(as, actions)
	return &ActionsValue{actions: as}
}

func (v *ActionsValue) Actions() []Action {
	return v.actions
}
