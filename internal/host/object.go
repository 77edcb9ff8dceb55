package host

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/capbridge/internal/capability"
	"github.com/danmuck/capbridge/internal/schema"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotStructPointer = errors.New("host: value must be a non-nil pointer to a struct")
	ErrNoSuchMember     = errors.New("host: no such member")
	ErrReleased         = errors.New("host: object released")
	ErrArgCount         = errors.New("host: too many arguments")
)

// ParamNamer supplies parameter names for exported methods, keyed by method
// name. Reflection does not carry them.
type ParamNamer interface {
	ParamNames() map[string][]string
}

// DataReceiver is notified after an action on its target succeeded.
type DataReceiver interface {
	OnDataReceived()
}

type eventField interface {
	capability.EventSource
	PayloadType() reflect.Type
}

var eventFieldType = reflect.TypeFor[eventField]()

// Object wraps a pointer to a struct as a capability.Host.
type Object struct {
	v         reflect.Value
	name      string
	transient bool
	trace     func(line string)

	// mu serializes field writes and calls into the wrapped value.
	mu       sync.Mutex
	released atomic.Bool

	sibMu    sync.RWMutex
	siblings []*Object
}

// Option configures an Object at construction.
type Option func(*Object)

// WithName sets the display identifier. The default is the struct type name.
func WithName(name string) Option {
	return func(o *Object) { o.name = name }
}

// WithTransient marks preview instances that must never be published.
func WithTransient(transient bool) Option {
	return func(o *Object) { o.transient = transient }
}

// WithSiblings co-locates objects whose members join this object's target.
func WithSiblings(siblings ...*Object) Option {
	return func(o *Object) { o.siblings = append(o.siblings, siblings...) }
}

// WithCallTrace observes every call line before it is dispatched.
func WithCallTrace(fn func(line string)) Option {
	return func(o *Object) { o.trace = fn }
}

// New wraps v, which must be a non-nil pointer to a struct.
func New(v any, opts ...Option) (*Object, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, ErrNotStructPointer
	}
	o := &Object{v: rv, name: rv.Elem().Type().Name()}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Value returns the wrapped pointer.
func (o *Object) Value() any { return o.v.Interface() }

func (o *Object) Identifier() string { return o.name }
func (o *Object) Transient() bool    { return o.transient }
func (o *Object) Alive() bool        { return !o.released.Load() }

// Release marks the object destroyed. Bindings holding it stop calling in.
func (o *Object) Release() {
	o.released.Store(true)
}

// AddSibling attaches another object at runtime; a rescan picks up its members.
func (o *Object) AddSibling(s *Object) {
	o.sibMu.Lock()
	defer o.sibMu.Unlock()
	o.siblings = append(o.siblings, s)
}

func (o *Object) Siblings() []capability.Host {
	o.sibMu.RLock()
	defer o.sibMu.RUnlock()
	out := make([]capability.Host, 0, len(o.siblings))
	for _, s := range o.siblings {
		if s.Alive() {
			out = append(out, s)
		}
	}
	return out
}

// OnDataReceived forwards to the wrapped value when it is a DataReceiver.
func (o *Object) OnDataReceived() {
	if !o.Alive() {
		return
	}
	if dr, ok := o.v.Interface().(DataReceiver); ok {
		dr.OnDataReceived()
	}
}

// Members lists exported fields, methods and events. Members whose types
// cannot be described are skipped.
func (o *Object) Members() []capability.Member {
	var out []capability.Member
	elem := o.v.Elem()
	t := elem.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if ev, ok := asEvent(elem.Field(i)); ok {
			nodes, err := eventSchema(ev.PayloadType())
			if err != nil {
				log.Debug().Str("member", f.Name).Err(err).Msg("host.Object.Members skip event")
				continue
			}
			out = append(out, capability.Member{Name: f.Name, Kind: capability.MemberEvent, Schema: nodes, Event: ev})
			continue
		}
		n, err := schema.ForField(f)
		if err != nil {
			log.Debug().Str("member", f.Name).Err(err).Msg("host.Object.Members skip field")
			continue
		}
		out = append(out, capability.Member{Name: f.Name, Kind: capability.MemberField, Schema: []schema.Node{n}})
	}

	var names map[string][]string
	if pn, ok := o.v.Interface().(ParamNamer); ok {
		names = pn.ParamNames()
	}
	// Methods follow fields, in lexical order.
	pt := o.v.Type()
	methods := make([]capability.Member, 0, pt.NumMethod())
	for i := range pt.NumMethod() {
		m := pt.Method(i)
		nodes, err := schema.ForFunc(o.v.Method(i).Type(), names[m.Name])
		if err != nil {
			log.Debug().Str("member", m.Name).Err(err).Msg("host.Object.Members skip method")
			continue
		}
		methods = append(methods, capability.Member{Name: m.Name, Kind: capability.MemberOperation, Schema: nodes})
	}
	return append(out, methods...)
}

func asEvent(f reflect.Value) (eventField, bool) {
	if f.Kind() == reflect.Pointer {
		if f.IsNil() || !f.Type().Implements(eventFieldType) {
			return nil, false
		}
		return f.Interface().(eventField), true
	}
	if !f.CanAddr() || !f.Addr().Type().Implements(eventFieldType) {
		return nil, false
	}
	return f.Addr().Interface().(eventField), true
}

func eventSchema(t reflect.Type) ([]schema.Node, error) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() == reflect.Struct {
		if n, err := schema.ForType("Value", t); err == nil && !n.Composite() {
			return []schema.Node{n}, nil
		}
		return schema.ForStruct(t)
	}
	n, err := schema.ForType("Value", t)
	if err != nil {
		return nil, err
	}
	return []schema.Node{n}, nil
}

// ImportField parses text into the named exported field.
func (o *Object) ImportField(name, text string) (string, error) {
	if !o.Alive() {
		return text, ErrReleased
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.v.Elem().FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return text, fmt.Errorf("%w: field %s", ErrNoSuchMember, name)
	}
	tmp := reflect.New(f.Type()).Elem()
	tmp.Set(f)
	rest, err := Import(text, tmp)
	if err != nil {
		return rest, err
	}
	f.Set(tmp)
	return rest, nil
}

// Invoke calls the named method with formatted arguments.
func (o *Object) Invoke(name, args string) bool {
	return o.Call(capability.CallLine(name, args))
}

// Call parses a call line, `"Name" arg arg`, and invokes the method. Missing
// trailing arguments take zero values. A method whose last result is a
// non-nil error, or whose only result is false, reports failure.
func (o *Object) Call(line string) bool {
	if err := o.call(line); err != nil {
		log.Warn().Str("object", o.name).Str("call", line).Err(err).Msg("host.Object.Call")
		return false
	}
	return true
}

func (o *Object) call(line string) error {
	if !o.Alive() {
		return ErrReleased
	}
	if o.trace != nil {
		o.trace(line)
	}
	tokens, err := SplitArgs(line)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty call", ErrSyntax)
	}
	name := tokens[0]
	if strings.HasPrefix(name, `"`) {
		if name, _, err = unquote(name); err != nil {
			return err
		}
	}
	m := o.v.MethodByName(name)
	if !m.IsValid() {
		return fmt.Errorf("%w: method %s", ErrNoSuchMember, name)
	}
	mt := m.Type()
	args := tokens[1:]
	if len(args) > mt.NumIn() {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArgCount, name, mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, mt.NumIn())
	for i := range in {
		v := reflect.New(mt.In(i)).Elem()
		if i < len(args) {
			rest, err := Import(args[i], v)
			if err != nil {
				return fmt.Errorf("arg %d: %w", i, err)
			}
			if strings.TrimSpace(rest) != "" {
				return fmt.Errorf("%w: arg %d trailing %q", ErrSyntax, i, rest)
			}
		}
		in[i] = v
	}

	out, err := o.invoke(name, m, in)
	if err != nil {
		return err
	}
	return callResult(name, out)
}

func (o *Object) invoke(name string, m reflect.Value, in []reflect.Value) (out []reflect.Value, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host: %s panicked: %v", name, r)
		}
	}()
	return m.Call(in), nil
}

var errorType = reflect.TypeFor[error]()

func callResult(name string, out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	if last.Type().Implements(errorType) {
		if !last.IsNil() {
			return last.Interface().(error)
		}
		return nil
	}
	if len(out) == 1 && last.Kind() == reflect.Bool && !last.Bool() {
		return fmt.Errorf("host: %s returned false", name)
	}
	return nil
}
