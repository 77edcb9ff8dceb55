package capability

import (
	"reflect"
	"sync"

	"github.com/danmuck/capbridge/internal/schema"
	"github.com/rs/zerolog/log"
)

// PulseSink receives packaged emitter firings.
type PulseSink func(emitterID string, data map[string]any)

// Emitter is an observable capability. Once wired it forwards every firing of
// its event source to a sink.
type Emitter struct {
	id     string
	name   string
	schema []schema.Node

	mu     sync.Mutex
	cancel func()
}

// NewEmitter describes an event source. It forwards nothing until wired to
// a source and a sink.
func NewEmitter(id, name string, nodes []schema.Node) *Emitter {
	return &Emitter{id: id, name: name, schema: nodes}
}

func (e *Emitter) ID() string            { return e.id }
func (e *Emitter) Name() string          { return e.name }
func (e *Emitter) Schema() []schema.Node { return e.schema }

// Wire subscribes to src. An existing subscription is released first.
func (e *Emitter) Wire(src EventSource, sink PulseSink) {
	if src == nil || sink == nil {
		return
	}
	e.Release()
	id, nodes := e.id, e.schema
	cancel := src.Subscribe(func(payload any) {
		sink(id, schema.Values(nodes, reflect.ValueOf(payload)))
	})
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	log.Debug().Str("emitter_id", e.id).Msg("capability.Emitter.Wire")
}

// Release drops the subscription, if any.
func (e *Emitter) Release() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Emitter) Wired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}
