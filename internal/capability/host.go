package capability

import (
	"strings"

	"github.com/danmuck/capbridge/internal/marshal"
	"github.com/danmuck/capbridge/internal/schema"
)

// Invoker calls a host operation by name with a formatted argument string.
type Invoker interface {
	Invoke(name, args string) bool
}

// FieldImporter writes formatted value text into a named field. It returns
// whatever text it did not consume.
type FieldImporter interface {
	ImportField(name, text string) (rest string, err error)
}

// EventSource delivers event firings to subscribers until cancelled.
type EventSource interface {
	Subscribe(fn func(payload any)) (cancel func())
}

// MemberKind classifies a reflected member.
type MemberKind int

const (
	MemberField MemberKind = iota + 1
	MemberOperation
	MemberEvent
)

func (k MemberKind) String() string {
	switch k {
	case MemberField:
		return "field"
	case MemberOperation:
		return "operation"
	case MemberEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Member is one reflected member of a host object.
type Member struct {
	Name   string
	Kind   MemberKind
	Schema []schema.Node
	// Event is set for MemberEvent.
	Event EventSource
}

// Host is a live object whose members can be bound. Alive turns false once
// the object is released; bindings check it before every call.
type Host interface {
	Invoker
	FieldImporter
	Alive() bool
	Members() []Member
}

// CallLine renders the name-based call form: the quoted operation name
// followed by its arguments.
func CallLine(name, args string) string {
	line := marshal.Quote(name)
	if args = strings.TrimSpace(args); args != "" {
		line += " " + args
	}
	return line
}
