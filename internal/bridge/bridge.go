package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/capbridge/internal/observability"
	"github.com/danmuck/capbridge/internal/protocol"
	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultURL             = "ws://localhost:5155/myko"
	DefaultServiceTypeCode = "capbridge"
	DefaultColor           = "#FF6B00"
)

var (
	ErrClosed      = errors.New("bridge: closed")
	ErrURLRequired = errors.New("bridge: coordinator url required")
)

// Status is the connection state reported to OnStatus listeners.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Config describes the coordinator and how this process appears to it.
type Config struct {
	URL             string
	ServiceID       string
	ServiceTypeCode string
	// Color is the #RRGGBB used for the instance and its targets.
	Color   string
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		URL:             DefaultURL,
		ServiceID:       registry.DefaultConfig().ServiceID,
		ServiceTypeCode: DefaultServiceTypeCode,
		Color:           DefaultColor,
		Session:         session.DefaultConfig(),
	}
}

// Targets is the registry surface the bridge routes commands into.
type Targets interface {
	Snapshot() []registry.TargetView
	TakeAction(ctx context.Context, targetID, actionID string, payload []byte) bool
}

// Bridge publishes registry state to a coordinator and routes its commands
// back. It implements registry.Publisher.
type Bridge struct {
	cfg     Config
	id      Identity
	targets Targets
	dialer  Dialer
	outbox  *session.Outbox
	now     func() time.Time

	mu        sync.Mutex
	url       string
	link      *link
	status    Status
	clientID  string
	listeners []func(Status)
}

type link struct {
	conn   Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, targets Targets, dialer Dialer) *Bridge {
	if strings.TrimSpace(cfg.ServiceTypeCode) == "" {
		cfg.ServiceTypeCode = DefaultServiceTypeCode
	}
	if strings.TrimSpace(cfg.Color) == "" {
		cfg.Color = DefaultColor
	}
	if dialer == nil {
		dialer = WSDialer{Session: cfg.Session}
	}
	return &Bridge{
		cfg:     cfg,
		id:      NewIdentity(cfg.ServiceID),
		targets: targets,
		dialer:  dialer,
		outbox:  session.NewOutbox(cfg.Session.OutboxCapacity),
		now:     time.Now,
		url:     cfg.URL,
	}
}

func (b *Bridge) Identity() Identity { return b.id }

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bridge) ClientID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientID
}

func (b *Bridge) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

// SetURL changes the coordinator address used by the next Connect.
func (b *Bridge) SetURL(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = strings.TrimSpace(url)
}

// Pending reports how many messages wait for the writer.
func (b *Bridge) Pending() int { return b.outbox.Len() }

// OnStatus registers fn for every status change. fn runs on the goroutine
// that caused the change and must not block or call Close.
func (b *Bridge) OnStatus(fn func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Connect dials the coordinator once. It is a no-op while connected.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	url := b.url
	if strings.TrimSpace(url) == "" {
		b.mu.Unlock()
		return ErrURLRequired
	}
	if b.status == StatusClosed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.link != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.cfg.Session.ValidateClientTransport(url); err != nil {
		return err
	}
	b.setStatus(StatusConnecting)

	dialCtx := ctx
	if b.cfg.Session.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, b.cfg.Session.DialTimeout)
		defer cancel()
	}
	conn, err := b.dialer.Dial(dialCtx, url)
	if err != nil {
		observability.RecordBridgeConnect(false)
		b.setStatus(StatusDisconnected)
		log.Warn().Str("url", url).Err(err).Msg("bridge.Bridge.Connect dial failed")
		return fmt.Errorf("bridge: dial %s: %w", url, err)
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &link{conn: conn, cancel: cancel}
	b.mu.Lock()
	if b.status == StatusClosed || b.link != nil {
		closed := b.status == StatusClosed
		b.mu.Unlock()
		cancel()
		_ = conn.Close()
		if closed {
			return ErrClosed
		}
		return nil
	}
	b.link = l
	b.status = StatusConnected
	b.mu.Unlock()

	observability.RecordBridgeConnect(true)
	b.notify(StatusConnected)
	log.Info().
		Str("url", url).
		Str("instance_id", b.id.InstanceID).
		Str("run_id", b.id.RunID).
		Msg("bridge.Bridge.Connect")

	if b.cfg.Session.PingOnConnect {
		b.ping()
	}
	l.wg.Add(2)
	go b.readLoop(linkCtx, l)
	go b.writeLoop(linkCtx, l)
	return nil
}

// Reconnect drops the current connection, if any, and dials again. Queued
// messages survive and are flushed on the new connection.
func (b *Bridge) Reconnect(ctx context.Context) error {
	b.mu.Lock()
	if b.status == StatusClosed {
		b.mu.Unlock()
		return ErrClosed
	}
	l := b.link
	b.link = nil
	b.mu.Unlock()

	if l != nil {
		l.shutdown()
	}
	log.Info().Str("url", b.URL()).Msg("bridge.Bridge.Reconnect")
	return b.Connect(ctx)
}

// Close drops the connection for good. Must not be called from an OnStatus
// listener.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.status == StatusClosed {
		b.mu.Unlock()
		return nil
	}
	l := b.link
	b.link = nil
	b.status = StatusClosed
	b.mu.Unlock()

	if l != nil {
		l.shutdown()
	}
	b.outbox.Clear()
	observability.SetOutboxDepth(0)
	b.notify(StatusClosed)
	log.Info().Str("url", b.URL()).Msg("bridge.Bridge.Close")
	return nil
}

func (l *link) shutdown() {
	l.cancel()
	_ = l.conn.Close()
	l.wg.Wait()
}

// dropLink tears down l after a read or write failure.
func (b *Bridge) dropLink(l *link, err error) {
	b.mu.Lock()
	if b.link != l {
		b.mu.Unlock()
		return
	}
	b.link = nil
	b.status = StatusDisconnected
	b.mu.Unlock()

	l.cancel()
	_ = l.conn.Close()
	log.Warn().Str("url", b.URL()).Err(err).Msg("bridge.Bridge connection lost")
	b.notify(StatusDisconnected)
}

func (b *Bridge) setStatus(s Status) {
	b.mu.Lock()
	if b.status == s || b.status == StatusClosed {
		b.mu.Unlock()
		return
	}
	b.status = s
	b.mu.Unlock()
	b.notify(s)
}

func (b *Bridge) notify(s Status) {
	observability.SetBridgeConnected(s == StatusConnected)
	b.mu.Lock()
	fns := append([]func(Status){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (b *Bridge) readLoop(ctx context.Context, l *link) {
	defer l.wg.Done()
	for {
		msg, err := l.conn.ReadMessage()
		if err != nil {
			b.dropLink(l, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		b.handleMessage(ctx, msg)
	}
}

// writeLoop is the only writer on l.conn.
func (b *Bridge) writeLoop(ctx context.Context, l *link) {
	defer l.wg.Done()
	for {
		if !b.flush(ctx, l) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-b.outbox.Ready():
		}
	}
}

func (b *Bridge) flush(ctx context.Context, l *link) bool {
	defer func() { observability.SetOutboxDepth(b.outbox.Len()) }()
	for {
		if ctx.Err() != nil {
			return false
		}
		p, ok := b.outbox.Next()
		if !ok {
			return true
		}
		if err := l.conn.WriteMessage(ctx, p.Payload); err != nil {
			b.outbox.Requeue(p, err.Error())
			b.dropLink(l, err)
			return false
		}
		observability.RecordBridgeMessage("out", gjson.GetBytes(p.Payload, "event").String())
	}
}

func (b *Bridge) enqueue(key string, prio session.Priority, payload []byte) {
	if b.Status() == StatusClosed {
		return
	}
	if !b.outbox.Upsert(session.Pending{Key: key, Priority: prio, Payload: payload}) {
		log.Warn().Str("key", key).Str("priority", prio.String()).Msg("bridge.Bridge outbox full, message dropped")
	}
	observability.SetOutboxDepth(b.outbox.Len())
}

func (b *Bridge) ping() {
	msg, err := protocol.EncodePing(b.now())
	if err != nil {
		log.Error().Err(err).Msg("bridge.Bridge.ping encode")
		return
	}
	b.enqueue("ping", session.PriorityCritical, msg)
}

func newTx() string { return uuid.NewString() }
