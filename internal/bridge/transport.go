package bridge

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is one live coordinator connection carrying text messages.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(ctx context.Context, msg []byte) error
	Close() error
}

// Dialer opens a Conn to a coordinator url.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WSDialer dials ws:// and wss:// coordinators.
type WSDialer struct {
	Session session.Config
}

func (d WSDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	dialer := ws.Dialer{Timeout: d.Session.DialTimeout}
	if u.Scheme == "wss" {
		tlsCfg, err := d.Session.ClientTLSConfig(u.Hostname())
		if err != nil {
			return nil, err
		}
		dialer.TLSConfig = tlsCfg
	}

	conn, br, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c := &wsConn{conn: conn, reader: conn, writeTimeout: d.Session.WriteTimeout}
	if br != nil {
		// Frames the server sent along with the handshake are buffered in br.
		c.reader = io.MultiReader(br, conn)
	}
	return c, nil
}

type wsConn struct {
	conn         net.Conn
	reader       io.Reader
	writeTimeout time.Duration
	wmu          sync.Mutex
}

// ReadMessage returns the next text message. Control frames are answered
// inline.
func (c *wsConn) ReadMessage() ([]byte, error) {
	return wsutil.ReadServerText(struct {
		io.Reader
		io.Writer
	}{c.reader, lockedWriter{c}})
}

func (c *wsConn) WriteMessage(ctx context.Context, msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.setWriteDeadline(ctx); err != nil {
		return err
	}
	return wsutil.WriteClientText(c.conn, msg)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = ws.WriteFrame(c.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))))
	c.wmu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) setWriteDeadline(ctx context.Context) error {
	if c.writeTimeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(c.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return c.conn.SetWriteDeadline(deadline)
}

// lockedWriter serializes control frame replies with WriteMessage.
type lockedWriter struct {
	c *wsConn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}
