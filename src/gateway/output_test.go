package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWSPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	serverConnCh := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverConnCh <- conn
	}))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverConnCh
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func TestOutputSenderDeliversTextAndBinary(t *testing.T) {
	serverConn, clientConn := newWSPair(t)

	sender := newOutputSender(serverConn)
	defer sender.Close()

	sender.SendText([]byte(`{"type":"stt.final"}`))
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if msgType != websocket.TextMessage || string(data) != `{"type":"stt.final"}` {
		t.Fatalf("unexpected text message: type=%d data=%q", msgType, data)
	}

	sender.SendBinary([]byte{1, 2, 3, 4})
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err = clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	if msgType != websocket.BinaryMessage || len(data) != 4 {
		t.Fatalf("unexpected binary message: type=%d len=%d", msgType, len(data))
	}
}

func TestOutputSenderDropsAfterClose(t *testing.T) {
	serverConn, _ := newWSPair(t)

	sender := newOutputSender(serverConn)
	sender.Close()
	sender.Close() // idempotent

	// Sends after Close must not panic or block.
	sender.SendText([]byte("too late"))
	sender.SendBinary([]byte{0xff})
}
