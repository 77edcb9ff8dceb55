package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrLoopRunning = errors.New("registry: main loop already running")
	ErrLoopStopped = errors.New("registry: main loop stopped")
)

// Dispatcher hands work to the main context.
type Dispatcher interface {
	// Call runs fn on the main context and waits for it. Called from the
	// main context it runs fn inline.
	Call(ctx context.Context, fn func(ctx context.Context)) error
	// Post queues fn on the main context and returns immediately.
	Post(fn func(ctx context.Context))
}

// Inline runs everything on the calling goroutine. Hosts without a loop of
// their own and tests use it.
type Inline struct{}

func (Inline) Call(ctx context.Context, fn func(ctx context.Context)) error {
	fn(ctx)
	return nil
}

func (Inline) Post(fn func(ctx context.Context)) {
	fn(context.Background())
}

type mainKey struct{}

// MainLoop is a single goroutine that runs queued tasks in order.
type MainLoop struct {
	mu      sync.Mutex
	queue   []func(ctx context.Context)
	wake    chan struct{}
	stopped chan struct{}
	running atomic.Bool
}

func NewMainLoop() *MainLoop {
	return &MainLoop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Run drains the queue until ctx is done.
func (l *MainLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer close(l.stopped)
	mctx := context.WithValue(ctx, mainKey{}, l)
	log.Debug().Msg("registry.MainLoop.Run start")
	for {
		tasks := l.drain()
		for _, fn := range tasks {
			l.run(mctx, fn)
		}
		if len(tasks) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			log.Debug().Msg("registry.MainLoop.Run stop")
			return nil
		case <-l.wake:
		}
	}
}

// OnMain reports whether ctx belongs to a task running on l.
func (l *MainLoop) OnMain(ctx context.Context) bool {
	owner, _ := ctx.Value(mainKey{}).(*MainLoop)
	return owner == l
}

// Call runs fn on the loop and waits. If ctx ends before the loop picks fn
// up, fn is skipped and ctx.Err() is returned; once fn has started, Call
// waits for it to finish.
func (l *MainLoop) Call(ctx context.Context, fn func(ctx context.Context)) error {
	if l.OnMain(ctx) {
		fn(ctx)
		return nil
	}
	done := make(chan struct{})
	// state moves from pending to either started or abandoned exactly once.
	var state atomic.Int32
	l.enqueue(func(mctx context.Context) {
		defer close(done)
		if !state.CompareAndSwap(taskPending, taskStarted) {
			return
		}
		fn(mctx)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return ctx.Err()
		}
		// Already running; a started task is never cancelled.
		<-done
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

const (
	taskPending int32 = iota
	taskStarted
	taskAbandoned
)

func (l *MainLoop) Post(fn func(ctx context.Context)) {
	l.enqueue(fn)
}

func (l *MainLoop) enqueue(fn func(ctx context.Context)) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *MainLoop) drain() []func(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.queue
	l.queue = nil
	return tasks
}

func (l *MainLoop) run(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("registry.MainLoop task panicked")
		}
	}()
	fn(ctx)
}
