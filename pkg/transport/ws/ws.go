// Package ws adapts a WebSocket connection to the transport.Bridge
// interface. Binary messages are audio frames in both directions: uplink
// messages carry raw PCM16 from the caller, downlink messages carry one
// encoded frame each.
//
// This adapter exists so the responder runs end to end without a SIP
// stack — a softphone gateway or test harness connects to the /ws endpoint
// and exchanges frames directly.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/parlavox/parlavox/pkg/transport"
)

const (
	// uplinkBuf is the uplink channel depth. At 20 ms frames this is about
	// one second of backlog before frames are dropped.
	uplinkBuf = 50

	// writeTimeout bounds each downlink frame write so a dead peer cannot
	// stall the playout scheduler.
	writeTimeout = 5 * time.Second
)

// Bridge is a transport.Bridge backed by a single WebSocket connection.
type Bridge struct {
	conn   *websocket.Conn
	uplink chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeUplink sync.Once
	mu          sync.Mutex
	closed      bool
}

var _ transport.Bridge = (*Bridge)(nil)

// NewBridge wraps an accepted WebSocket connection. It starts the read pump
// immediately; the caller owns the returned Bridge and must Close it.
func NewBridge(conn *websocket.Conn) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		conn:   conn,
		uplink: make(chan []byte, uplinkBuf),
		ctx:    ctx,
		cancel: cancel,
	}
	go b.readPump()
	return b
}

// Uplink returns the channel of caller PCM16 frames.
func (b *Bridge) Uplink() <-chan []byte {
	return b.uplink
}

// SendFrame writes one encoded frame as a binary message.
func (b *Bridge) SendFrame(frame []byte) error {
	ctx, cancel := context.WithTimeout(b.ctx, writeTimeout)
	defer cancel()

	if err := b.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("ws: send frame: %w", err)
	}
	return nil
}

// Close tears down the connection and closes the uplink channel.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	// The read pump owns the uplink channel: closing the connection fails
	// its blocked Read, and its deferred close fires. Closing the channel
	// here instead would race with an in-flight send. The connection must
	// go down before the context; cancelling the read context first would
	// abort the close handshake.
	err := b.conn.Close(websocket.StatusNormalClosure, "call ended")
	b.cancel()
	return err
}

// readPump forwards incoming binary messages to the uplink channel until
// the connection drops. Frames are dropped when the consumer lags; VAD can
// tolerate gaps, a blocked socket reader cannot.
func (b *Bridge) readPump() {
	defer b.closeUplink.Do(func() { close(b.uplink) })

	var droppedLogged bool
	for {
		typ, data, err := b.conn.Read(b.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		select {
		case b.uplink <- data:
		default:
			if !droppedLogged {
				slog.Warn("uplink consumer lagging, dropping frames")
				droppedLogged = true
			}
		}
	}
}

// Handler is an http.Handler that upgrades requests to WebSocket call legs
// and hands each one to the OnCall callback.
type Handler struct {
	// OnCall is invoked on a new goroutine for every accepted connection.
	// It owns the Bridge and must Close it before returning.
	OnCall func(transport.Bridge)
}

// ServeHTTP upgrades the request and dispatches the bridge.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	bridge := NewBridge(conn)
	go h.OnCall(bridge)
}
