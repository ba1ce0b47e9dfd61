package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesbot/dispatch/internal/store"
)

// SendOptions carries the optional fields accepted by send operations
// (spec.md §4.1): a reply reference and mentions.
type SendOptions struct {
	ReplyTo  *ReplyTo
	Mentions []Mention
}

// Transport is the native-client boundary named out of scope by
// spec.md §1 ("the native transport implementation"). Production
// wires a real implementation (a platform SDK or FFI wrapper, not
// specified here); WSTransport below is the reference implementation
// and a template for that production implementation. The package's
// own tests use an in-memory fake instead.
type Transport interface {
	// Connect establishes the underlying connection. Fails with
	// ErrUnavailable (retryable) or ErrUnauthenticated (fatal).
	Connect(ctx context.Context) error
	// Disconnect tears down the connection. Idempotent.
	Disconnect() error
	// Events returns the channel of raw transport events. Closed when
	// the transport's read loop exits.
	Events() <-chan Event
	// SendMessage sends text to threadID and returns the id assigned
	// by the transport.
	SendMessage(ctx context.Context, threadID store.ID, text string, opts SendOptions) (string, error)
	// SendTyping starts or stops a typing indicator.
	SendTyping(ctx context.Context, threadID store.ID, stop bool) error
	// SendReaction reacts to messageID with emoji.
	SendReaction(ctx context.Context, threadID store.ID, messageID, emoji string) error
	// MarkAsRead marks messageID read.
	MarkAsRead(ctx context.Context, threadID store.ID, messageID string) error
	// Ping checks liveness without side effects.
	Ping(ctx context.Context) error
}

// wsEnvelope is the generic wire message shape used by WSTransport —
// the same id-correlated request/response + unsolicited event pattern
// as Home Assistant's WebSocket API.
type wsEnvelope struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsResponse struct {
	Success bool
	Result  json.RawMessage
	Error   *wsError
}

// WSTransport is a reference Transport implementation that dials a
// `ws://`/`wss://` endpoint and exchanges id-correlated JSON messages,
// the same shape as internal/homeassistant's WebSocket client. It
// stands in for whatever native transport library production wires in.
type WSTransport struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	msgID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan wsResponse

	events chan Event
	done   chan struct{}
}

// NewWSTransport creates a transport that will dial rawURL on Connect.
func NewWSTransport(rawURL string, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		url:     rawURL,
		logger:  logger.With("component", "messenger.transport"),
		pending: make(map[int64]chan wsResponse),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("%w: parse transport url: %v", ErrUnauthenticated, err)
	}

	dialer := websocket.Dialer{
		ReadBufferSize:  1 << 16,
		WriteBufferSize: 1 << 16,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: dial transport: %v", ErrUnavailable, err)
	}
	t.conn = conn

	go t.readLoop()
	return nil
}

func (t *WSTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WSTransport) Events() <-chan Event { return t.events }

func (t *WSTransport) readLoop() {
	defer close(t.events)
	defer close(t.done)

	for {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.logger.Warn("transport read error", "error", err)
			t.emit(Event{Kind: KindError, Error: &ErrorPayload{Message: err.Error(), Code: classify(err.Error())}})
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Debug("transport non-JSON frame", "data", string(data))
			continue
		}

		if env.ID != 0 {
			t.pendingMu.Lock()
			ch, ok := t.pending[env.ID]
			if ok {
				delete(t.pending, env.ID)
			}
			t.pendingMu.Unlock()
			if ok {
				ch <- wsResponse{Success: env.Success, Result: env.Result, Error: env.Error}
			}
			continue
		}

		if len(env.Event) > 0 {
			t.emit(Event{Kind: KindRaw, Raw: json.RawMessage(env.Event)})
		}
	}
}

func (t *WSTransport) emit(e Event) {
	select {
	case t.events <- e:
	default:
		t.logger.Warn("transport event channel full, dropping event", "kind", e.Kind)
	}
}

func (t *WSTransport) call(ctx context.Context, msgType string, payload map[string]any) (json.RawMessage, error) {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return nil, ErrUnavailable
	}

	id := t.msgID.Add(1)
	ch := make(chan wsResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	frame := map[string]any{"id": id, "type": msgType}
	for k, v := range payload {
		frame[k] = v
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, err
	}

	t.connMu.Lock()
	if t.conn == nil {
		t.connMu.Unlock()
		return nil, ErrUnavailable
	}
	err = t.conn.WriteMessage(websocket.TextMessage, data)
	t.connMu.Unlock()
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("transport error %s: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-t.done:
		return nil, fmt.Errorf("transport closed")
	case <-time.After(30 * time.Second):
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, fmt.Errorf("transport call %q timed out", msgType)
	}
}

func (t *WSTransport) SendMessage(ctx context.Context, threadID store.ID, text string, opts SendOptions) (string, error) {
	raw, err := t.call(ctx, "sendMessage", map[string]any{"threadId": string(threadID), "text": text})
	if err != nil {
		return "", err
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal sendMessage result: %w", err)
	}
	return result.ID, nil
}

func (t *WSTransport) SendTyping(ctx context.Context, threadID store.ID, stop bool) error {
	_, err := t.call(ctx, "sendTyping", map[string]any{"threadId": string(threadID), "stop": stop})
	return err
}

func (t *WSTransport) SendReaction(ctx context.Context, threadID store.ID, messageID, emoji string) error {
	_, err := t.call(ctx, "sendReaction", map[string]any{"threadId": string(threadID), "messageId": messageID, "emoji": emoji})
	return err
}

func (t *WSTransport) MarkAsRead(ctx context.Context, threadID store.ID, messageID string) error {
	_, err := t.call(ctx, "markAsRead", map[string]any{"threadId": string(threadID), "messageId": messageID})
	return err
}

func (t *WSTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}
