package ws

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/parlavox/parlavox/pkg/transport"
)

// dialTestServer starts an httptest server around a Handler and dials it,
// returning the client connection and the server-side bridge.
func dialTestServer(t *testing.T) (*websocket.Conn, transport.Bridge) {
	t.Helper()

	bridges := make(chan transport.Bridge, 1)
	srv := httptest.NewServer(&Handler{
		OnCall: func(b transport.Bridge) { bridges <- b },
	})
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case b := <-bridges:
		// Client side goes down first so the bridge close does not wait
		// for a handshake reply.
		t.Cleanup(func() {
			conn.Close(websocket.StatusNormalClosure, "")
			b.Close()
		})
		return conn, b
	case <-time.After(5 * time.Second):
		conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("handler never delivered a bridge")
		return nil, nil
	}
}

func TestBridge_UplinkDeliversBinaryFrames(t *testing.T) {
	t.Parallel()

	conn, bridge := dialTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := []byte{1, 2, 3, 4}
	if err := conn.Write(ctx, websocket.MessageBinary, want); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case got := <-bridge.Uplink():
		if !bytes.Equal(got, want) {
			t.Errorf("uplink frame = %v, want %v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("uplink frame never arrived")
	}
}

func TestBridge_SendFrameReachesClient(t *testing.T) {
	t.Parallel()

	conn, bridge := dialTestServer(t)

	want := []byte{9, 8, 7}
	if err := bridge.SendFrame(want); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, got, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Errorf("message type = %v, want binary", typ)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("frame = %v, want %v", got, want)
	}
}

func TestBridge_CloseClosesUplink(t *testing.T) {
	t.Parallel()

	conn, bridge := dialTestServer(t)

	// Keep the client reading so the close handshake can complete.
	go func() {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	if err := bridge.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bridge.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	select {
	case _, ok := <-bridge.Uplink():
		if ok {
			t.Error("uplink delivered a frame after Close, want closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("uplink channel never closed after Close")
	}
}

func TestBridge_ClientHangupClosesUplink(t *testing.T) {
	t.Parallel()

	conn, bridge := dialTestServer(t)

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-bridge.Uplink():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("uplink channel never closed after client hangup")
		}
	}
}
