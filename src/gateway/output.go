package gateway

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// wsMessage is one pre-serialized outbound websocket write.
type wsMessage struct {
	msgType int
	data    []byte
}

// outputSender serializes all writes to one websocket connection behind
// a single queue-drained goroutine, since gorilla/websocket connections
// may not be written to concurrently. This generalizes teacher's
// WebSocketOutputProcessor chunk-queue sender, dropping its telephony
// real-time pacing (fixed 160/320-byte frame intervals): this gateway
// streams MP3 chunks over a plain websocket, where write backpressure
// from the socket itself is the pacing mechanism (spec §5).
type outputSender struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool

	queue  chan wsMessage
	done   chan struct{}
	cancel context.CancelFunc
}

func newOutputSender(conn *websocket.Conn) *outputSender {
	ctx, cancel := context.WithCancel(context.Background())
	s := &outputSender{
		conn:   conn,
		queue:  make(chan wsMessage, 256),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(ctx)
	return s
}

func (s *outputSender) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case msg := <-s.queue:
			_ = s.conn.WriteMessage(msg.msgType, msg.data)
		case <-ctx.Done():
			return
		}
	}
}

// SendBinary enqueues a binary wire frame (tts.chunk audio). It drops
// the message rather than blocking if the queue is full, matching spec
// §5's "TTS writes... naturally bounded by socket write backpressure"
// (a persistently full queue means the client has stopped draining).
func (s *outputSender) SendBinary(data []byte) {
	s.enqueue(wsMessage{msgType: websocket.BinaryMessage, data: data})
}

// SendText enqueues a JSON control envelope.
func (s *outputSender) SendText(data []byte) {
	s.enqueue(wsMessage{msgType: websocket.TextMessage, data: data})
}

func (s *outputSender) enqueue(msg wsMessage) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.queue <- msg:
	default:
	}
}

// Close stops the sender goroutine. Safe to call once.
func (s *outputSender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}
