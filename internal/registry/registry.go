package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/capbridge/internal/capability"
	"github.com/danmuck/capbridge/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownTarget = errors.New("registry: unknown target")
	ErrUnknownAction = errors.New("registry: unknown action")
	ErrTargetExists  = errors.New("registry: target id owned by another object")
	ErrTransient     = errors.New("registry: transient owner")
	ErrOwnerGone     = errors.New("registry: owner released")
)

// Owner is a host object that can be registered as a Target.
type Owner interface {
	capability.Host
	// Identifier is the default display name.
	Identifier() string
	// Transient marks preview instances that are never published.
	Transient() bool
	// Siblings are co-located objects whose members join the Target.
	Siblings() []capability.Host
}

// DataReceiver is notified on the main context after an action on its
// Target succeeded.
type DataReceiver interface {
	OnDataReceived()
}

// Publisher pushes registry state to the coordinator.
type Publisher interface {
	SendAll()
	SendTarget(t TargetView)
	DeleteTarget(t TargetView)
	PulseEmitter(emitterID string, data map[string]any)
}

// Config names the service that prefixes every target id and the policy
// that admits members.
type Config struct {
	ServiceID string
	Policy    Policy
}

// DefaultConfig uses service id "capbridge" and DefaultPolicy.
func DefaultConfig() Config {
	return Config{ServiceID: "capbridge", Policy: DefaultPolicy()}
}

// Registry owns every Target. Use one per bridge; there is no package-level
// instance.
type Registry struct {
	cfg  Config
	main Dispatcher

	mu        sync.RWMutex
	targets   map[string]*Target
	owners    map[Owner]string
	idents    map[Owner]string
	publisher Publisher
}

func New(cfg Config, main Dispatcher) *Registry {
	if main == nil {
		main = Inline{}
	}
	return &Registry{
		cfg:     cfg,
		main:    main,
		targets: make(map[string]*Target),
		owners:  make(map[Owner]string),
		idents:  make(map[Owner]string),
	}
}

// SetPublisher attaches the bridge. A nil publisher drops publishes.
func (r *Registry) SetPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = p
}

func (r *Registry) ServiceID() string { return r.cfg.ServiceID }

func (r *Registry) pub() Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.publisher == nil {
		return nopPublisher{}
	}
	return r.publisher
}

// TargetID is the fully-qualified id for a display name.
func (r *Registry) TargetID(displayName string) string {
	return r.cfg.ServiceID + ":" + displayName
}

// Register builds and publishes the Target for owner. A registered owner is
// unregistered first.
func (r *Registry) Register(owner Owner) bool {
	if owner == nil {
		return false
	}
	if !owner.Alive() {
		log.Warn().Err(ErrOwnerGone).Msg("registry.Register skip")
		return false
	}
	if owner.Transient() {
		log.Debug().Str("owner", owner.Identifier()).Err(ErrTransient).Msg("registry.Register skip")
		return false
	}
	if r.registered(owner) {
		r.unregister(owner, false)
	}

	name := r.identifier(owner)
	id := r.TargetID(name)
	t := newTarget(id, name, owner)

	r.mu.Lock()
	if _, taken := r.targets[id]; taken {
		r.mu.Unlock()
		log.Warn().Str("target_id", id).Err(ErrTargetExists).Msg("registry.Register")
		return false
	}
	added := r.discover(t)
	r.targets[id] = t
	r.owners[owner] = id
	count := len(r.targets)
	r.mu.Unlock()

	observability.SetTargetsRegistered(count)
	log.Info().
		Str("target_id", id).
		Int("actions", len(t.actions)).
		Int("emitters", len(t.emitters)).
		Int("members", added).
		Msg("registry.Register")
	r.pub().SendAll()
	return true
}

// Unregister deletes owner's Target from the coordinator and releases it.
// An identifier set with SetIdentifier is forgotten.
func (r *Registry) Unregister(owner Owner) bool {
	return r.unregister(owner, true)
}

func (r *Registry) unregister(owner Owner, forget bool) bool {
	r.mu.Lock()
	if forget {
		delete(r.idents, owner)
	}
	id, ok := r.owners[owner]
	if !ok {
		r.mu.Unlock()
		return false
	}
	t := r.targets[id]
	view := t.view()
	delete(r.owners, owner)
	delete(r.targets, id)
	count := len(r.targets)
	r.mu.Unlock()

	r.pub().DeleteTarget(view)
	t.release()
	observability.SetTargetsRegistered(count)
	log.Info().Str("target_id", id).Msg("registry.Unregister")
	return true
}

// Rescan adds newly discovered members to owner's Target and returns how many
// were added. Existing members are never removed.
func (r *Registry) Rescan(owner Owner) int {
	r.mu.Lock()
	id, ok := r.owners[owner]
	if !ok {
		r.mu.Unlock()
		log.Debug().Str("owner", owner.Identifier()).Msg("registry.Rescan not registered")
		return 0
	}
	t := r.targets[id]
	added := r.discover(t)
	view := t.view()
	r.mu.Unlock()

	log.Info().Str("target_id", id).Int("added", added).Msg("registry.Rescan")
	if added > 0 {
		r.pub().SendTarget(view)
	}
	return added
}

// RescanTarget is Rescan by target id.
func (r *Registry) RescanTarget(targetID string) (int, error) {
	r.mu.RLock()
	t, ok := r.targets[targetID]
	r.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownTarget
	}
	return r.Rescan(t.owner), nil
}

// SetIdentifier changes owner's display identifier. A registered owner is
// unregistered and registered again under the new id.
func (r *Registry) SetIdentifier(owner Owner, name string) bool {
	if name == "" || name == r.identifier(owner) {
		return false
	}
	wasRegistered := r.registered(owner)
	if wasRegistered {
		r.unregister(owner, false)
	}
	r.mu.Lock()
	for o := range r.idents {
		if !o.Alive() {
			delete(r.idents, o)
		}
	}
	r.idents[owner] = name
	r.mu.Unlock()
	log.Info().Str("owner", owner.Identifier()).Str("identifier", name).Msg("registry.SetIdentifier")
	if wasRegistered {
		return r.Register(owner)
	}
	return true
}

// TakeAction runs an action on the main context. Unknown ids are logged and
// report false without touching any Target.
func (r *Registry) TakeAction(ctx context.Context, targetID, actionID string, payload []byte) bool {
	r.mu.RLock()
	t, ok := r.targets[targetID]
	var a *capability.Action
	if ok {
		a = t.actions[actionID]
	}
	r.mu.RUnlock()

	if !ok {
		log.Warn().Str("target_id", targetID).Str("action_id", actionID).Err(ErrUnknownTarget).Msg("registry.TakeAction")
		observability.RecordActionTake("unresolved", false)
		return false
	}
	if a == nil {
		log.Warn().Str("target_id", targetID).Str("action_id", actionID).Err(ErrUnknownAction).Msg("registry.TakeAction")
		observability.RecordActionTake("unresolved", false)
		return false
	}

	var taken bool
	if err := r.main.Call(ctx, func(context.Context) { taken = a.Take(payload) }); err != nil {
		log.Warn().Str("action_id", actionID).Err(err).Msg("registry.TakeAction dispatch failed")
		observability.RecordActionTake(a.Kind().String(), false)
		return false
	}
	observability.RecordActionTake(a.Kind().String(), taken)
	if !taken {
		return false
	}

	owner := t.owner
	r.main.Post(func(context.Context) { notifyDataReceived(owner) })
	return true
}

func notifyDataReceived(owner Owner) {
	if !owner.Alive() {
		return
	}
	if dr, ok := owner.(DataReceiver); ok {
		dr.OnDataReceived()
	}
	for _, s := range owner.Siblings() {
		if dr, ok := s.(DataReceiver); ok {
			dr.OnDataReceived()
		}
	}
}

// Snapshot returns every Target sorted by id.
func (r *Registry) Snapshot() []TargetView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TargetView, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Target returns a snapshot of the Target registered under id.
func (r *Registry) Target(id string) (TargetView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return TargetView{}, false
	}
	return t.view(), true
}

// Owner returns the object registered under a target id.
func (r *Registry) Owner(targetID string) (Owner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[targetID]
	if !ok {
		return nil, false
	}
	return t.owner, true
}

// Len is the number of registered Targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

func (r *Registry) registered(owner Owner) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[owner]
	return ok
}

func (r *Registry) identifier(owner Owner) string {
	r.mu.RLock()
	name, ok := r.idents[owner]
	r.mu.RUnlock()
	if ok {
		return name
	}
	return owner.Identifier()
}

// discover binds every admitted member of t's owner and siblings that t does
// not have yet. Callers hold r.mu.
func (r *Registry) discover(t *Target) int {
	added := 0
	hosts := append([]capability.Host{t.owner}, t.owner.Siblings()...)
	for _, h := range hosts {
		for _, m := range h.Members() {
			if !r.cfg.Policy.Allows(m.Name) {
				continue
			}
			id := t.id + ":" + m.Name
			if _, ok := t.actions[id]; ok {
				continue
			}
			if _, ok := t.emitters[id]; ok {
				continue
			}
			switch m.Kind {
			case capability.MemberEvent:
				e := capability.NewEmitter(id, m.Name, m.Schema)
				e.Wire(m.Event, r.forwardPulse)
				t.emitters[id] = e
			case capability.MemberField:
				if len(m.Schema) != 1 {
					continue
				}
				t.actions[id] = capability.NewField(id, m.Name, h, m.Schema[0])
			case capability.MemberOperation:
				t.actions[id] = capability.NewOperation(id, m.Name, h, m.Schema)
			default:
				continue
			}
			added++
		}
	}
	return added
}

func (r *Registry) forwardPulse(emitterID string, data map[string]any) {
	observability.RecordPulse()
	r.pub().PulseEmitter(emitterID, data)
}

type nopPublisher struct{}

func (nopPublisher) SendAll()                            {}
func (nopPublisher) SendTarget(TargetView)               {}
func (nopPublisher) DeleteTarget(TargetView)             {}
func (nopPublisher) PulseEmitter(string, map[string]any) {}
