package registry

import (
	"maps"
	"slices"
	"sort"

	"github.com/danmuck/capbridge/internal/capability"
	"github.com/danmuck/capbridge/internal/schema"
)

const DefaultCategory = "default"

// Describer is implemented by owners that carry publish metadata.
type Describer interface {
	Category() string
	Tags() []string
	GroupIDs() []string
	ParentIDs() []string
}

// Target is the capability container for one owner and its siblings.
type Target struct {
	id       string
	name     string
	owner    Owner
	meta     Metadata
	actions  map[string]*capability.Action
	emitters map[string]*capability.Emitter
}

// Metadata is publish-only information about a Target.
type Metadata struct {
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	GroupIDs  []string `json:"groupIds"`
	ParentIDs []string `json:"parentIds"`
}

func newTarget(id, name string, owner Owner) *Target {
	meta := Metadata{Category: DefaultCategory}
	if d, ok := owner.(Describer); ok {
		if c := d.Category(); c != "" {
			meta.Category = c
		}
		meta.Tags = slices.Clone(d.Tags())
		meta.GroupIDs = slices.Clone(d.GroupIDs())
		meta.ParentIDs = uniqueSorted(d.ParentIDs())
	}
	return &Target{
		id:       id,
		name:     name,
		owner:    owner,
		meta:     meta,
		actions:  make(map[string]*capability.Action),
		emitters: make(map[string]*capability.Emitter),
	}
}

func (t *Target) ID() string { return t.id }

func (t *Target) release() {
	for _, e := range t.emitters {
		e.Release()
	}
}

// ActionView is a read-only copy of an Action's description.
type ActionView struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	Schema []schema.Node `json:"schema"`
}

// EmitterView is a read-only copy of an Emitter's description.
type EmitterView struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Schema []schema.Node `json:"schema"`
}

// TargetView is a snapshot of a Target, safe to hold outside the registry.
type TargetView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Metadata Metadata      `json:"metadata"`
	Actions  []ActionView  `json:"actions"`
	Emitters []EmitterView `json:"emitters"`
}

func (v TargetView) ActionIDs() []string {
	ids := make([]string, 0, len(v.Actions))
	for _, a := range v.Actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func (v TargetView) EmitterIDs() []string {
	ids := make([]string, 0, len(v.Emitters))
	for _, e := range v.Emitters {
		ids = append(ids, e.ID)
	}
	return ids
}

func (t *Target) view() TargetView {
	v := TargetView{
		ID:       t.id,
		Name:     t.name,
		Metadata: t.meta,
		Actions:  make([]ActionView, 0, len(t.actions)),
		Emitters: make([]EmitterView, 0, len(t.emitters)),
	}
	for _, id := range slices.Sorted(maps.Keys(t.actions)) {
		a := t.actions[id]
		v.Actions = append(v.Actions, ActionView{ID: a.ID(), Name: a.Name(), Kind: a.Kind().String(), Schema: a.Schema()})
	}
	for _, id := range slices.Sorted(maps.Keys(t.emitters)) {
		e := t.emitters[id]
		v.Emitters = append(v.Emitters, EmitterView{ID: e.ID(), Name: e.Name(), Schema: e.Schema()})
	}
	return v
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
