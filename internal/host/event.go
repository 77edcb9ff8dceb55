package host

import (
	"reflect"
	"sync"
)

// Event is an observable event with payload type T. The zero value is ready
// to use. Declare it as an exported field of a host struct to publish it.
type Event[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(any)
}

// Subscribe registers fn for every Emit until the returned cancel is called.
func (e *Event[T]) Subscribe(fn func(payload any)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[uint64]func(any))
	}
	id := e.next
	e.next++
	e.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers payload to all current subscribers on the calling goroutine.
func (e *Event[T]) Emit(payload T) {
	e.mu.RLock()
	fns := make([]func(any), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// Subscribers reports the number of live subscriptions.
func (e *Event[T]) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// PayloadType is the reflected type of T.
func (e *Event[T]) PayloadType() reflect.Type {
	return reflect.TypeFor[T]()
}
