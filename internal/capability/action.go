package capability

import (
	"errors"
	"strings"

	"github.com/danmuck/capbridge/internal/marshal"
	"github.com/danmuck/capbridge/internal/schema"
	"github.com/rs/zerolog/log"
)

var ErrOwnerGone = errors.New("capability: owner released")

// Kind tells how an Action reaches its owner: by calling a method or by
// importing text into a field.
type Kind int

const (
	CallableOperation Kind = iota + 1
	WritableField
)

func (k Kind) String() string {
	switch k {
	case CallableOperation:
		return "operation"
	case WritableField:
		return "field"
	default:
		return "unknown"
	}
}

// Action is an invocable capability.
type Action struct {
	id     string
	name   string
	kind   Kind
	owner  Host
	schema []schema.Node
}

// NewOperation binds a callable operation of owner.
func NewOperation(id, name string, owner Host, nodes []schema.Node) *Action {
	return &Action{id: id, name: name, kind: CallableOperation, owner: owner, schema: nodes}
}

// NewField binds a writable field of owner. Its schema is the field's node.
func NewField(id, name string, owner Host, node schema.Node) *Action {
	return &Action{id: id, name: name, kind: WritableField, owner: owner, schema: []schema.Node{node}}
}

// ID is the global action id, "<targetId>:<memberName>".
func (a *Action) ID() string { return a.id }

// Name is the member name on the owner.
func (a *Action) Name() string { return a.name }

func (a *Action) Kind() Kind { return a.kind }

// Schema lists the parameter nodes; a field action has exactly one.
func (a *Action) Schema() []schema.Node { return a.schema }

// Owner is the host the action calls into.
func (a *Action) Owner() Host { return a.owner }

// Take runs the action with a JSON payload and reports whether it succeeded.
func (a *Action) Take(payload []byte) bool {
	if a.owner == nil || !a.owner.Alive() {
		log.Warn().Str("action_id", a.id).Err(ErrOwnerGone).Msg("capability.Action.Take")
		return false
	}
	switch a.kind {
	case WritableField:
		return a.importField(payload)
	case CallableOperation:
		return a.invoke(payload)
	default:
		log.Error().Str("action_id", a.id).Int("kind", int(a.kind)).Msg("capability.Action.Take unknown kind")
		return false
	}
}

func (a *Action) importField(payload []byte) bool {
	text := marshal.Marshal(a.schema, payload, false)
	rest, err := a.owner.ImportField(a.name, text)
	if err != nil {
		log.Warn().Str("action_id", a.id).Str("text", text).Err(err).Msg("capability.Action.Take import failed")
		return false
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		log.Warn().Str("action_id", a.id).Str("text", text).Str("rest", rest).Msg("capability.Action.Take import left residual text")
		return false
	}
	return true
}

func (a *Action) invoke(payload []byte) bool {
	args := marshal.Marshal(a.schema, payload, true)
	if !a.owner.Invoke(a.name, args) {
		log.Warn().Str("action_id", a.id).Str("call", CallLine(a.name, args)).Msg("capability.Action.Take invoke failed")
		return false
	}
	log.Debug().Str("action_id", a.id).Str("call", CallLine(a.name, args)).Msg("capability.Action.Take")
	return true
}
