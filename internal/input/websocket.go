package input

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client message types understood by WebSocketSource.
const (
	MessageTranscript = "transcript"
	MessageSend       = "send"
	MessagePing       = "ping"
)

// ClientMessage is one JSON frame from a voice client.
type ClientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// WebSocketSource reads transcripts produced by a browser's speech
// recognizer from a WebSocket. Frames that are not transcripts go to the
// control callback.
type WebSocketSource struct {
	conn *websocket.Conn

	mu         sync.Mutex
	onFragment func(Transcript)
	onControl  func(ClientMessage)
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

func NewWebSocketSource(conn *websocket.Conn) *WebSocketSource {
	return &WebSocketSource{conn: conn, done: make(chan struct{})}
}

func (s *WebSocketSource) OnFragment(fn func(Transcript)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFragment = fn
}

// OnControl registers the callback for non-transcript frames.
func (s *WebSocketSource) OnControl(fn func(ClientMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onControl = fn
}

// Start begins reading frames in the background. It returns an error when
// called twice.
func (s *WebSocketSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("transcript source already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.readLoop(ctx)
	return nil
}

// Stop ends the read loop and waits for it to exit.
func (s *WebSocketSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-s.done
	return nil
}

// Done is closed when the read loop has exited.
func (s *WebSocketSource) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the read loop, if any. A normal close by
// either side is not an error.
func (s *WebSocketSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WebSocketSource) readLoop(ctx context.Context) {
	defer close(s.done)
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Warn("Voice socket read error", "error", err)
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}

		s.mu.Lock()
		onFragment, onControl := s.onFragment, s.onControl
		s.mu.Unlock()

		switch msg.Type {
		case MessageTranscript:
			if onFragment != nil {
				onFragment(Transcript{Text: msg.Text, Final: msg.Final})
			}
		default:
			if onControl != nil {
				onControl(msg)
			}
		}
	}
}
