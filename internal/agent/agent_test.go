package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// pipeConn is an in-memory coordinator connection.
type pipeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 16), out: make(chan []byte, 256), closed: make(chan struct{})}
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *pipeConn) WriteMessage(_ context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) await(t *testing.T, event string) gjson.Result {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-c.out:
			if r := gjson.ParseBytes(msg); r.Get("event").String() == event {
				return r
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
			return gjson.Result{}
		}
	}
}

type pipeDialer struct {
	mu    sync.Mutex
	fail  bool
	conns chan *pipeConn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(chan *pipeConn, 8)}
}

func (d *pipeDialer) Dial(context.Context, string) (bridge.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := newPipeConn()
	d.conns <- c
	return c, nil
}

func (d *pipeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *pipeDialer) next(t *testing.T) *pipeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for dial")
		return nil
	}
}
