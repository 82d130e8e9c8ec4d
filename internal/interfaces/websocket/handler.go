package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/application/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback; cross-origin pages cannot read
		// loopback sockets they did not open.
		return true
	},
}

// inboundFrame is the single accepted client message shape.
type inboundFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

// Outbound frames. Each is one self-contained JSON object written as
// one text message; the field names are the client protocol.
type tokenFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallFrame struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type toolResultFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"isError,omitempty"`
}

type doneFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handler upgrades connections and runs one turn per inbound prompt.
type Handler struct {
	turns  *usecase.ChatTurnUseCase
	logger *zap.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(turns *usecase.ChatTurnUseCase, logger *zap.Logger) *Handler {
	return &Handler{turns: turns, logger: logger}
}

// Serve is the gin handler for the websocket endpoint. Prompts on one
// connection are handled sequentially; frames of a turn reach the
// client in emission order because the sink serializes writes.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("Client connected", zap.String("remote", conn.RemoteAddr().String()))

	sink := &connSink{conn: conn}
	ctx := c.Request.Context()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Client read failed", zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			_ = sink.Error("Malformed message: " + err.Error())
			continue
		}

		switch frame.Type {
		case "prompt":
			h.turns.Handle(ctx, sink, usecase.Prompt{
				Text:      frame.Text,
				SessionID: frame.SessionID,
			})
		default:
			_ = sink.Error("Unknown message type: " + frame.Type)
		}
	}
}

// HandleTurn runs one prompt against an already-open sink. Split out so
// transports other than gin-mounted websockets can reuse the handler.
func (h *Handler) HandleTurn(ctx context.Context, sink usecase.ClientSink, prompt usecase.Prompt) {
	h.turns.Handle(ctx, sink, prompt)
}

// connSink writes client frames onto one connection. gorilla permits a
// single concurrent writer, so all writes go through one mutex.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSink) write(frame interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *connSink) Token(text string) error {
	return s.write(tokenFrame{Type: "token", Text: text})
}

func (s *connSink) ToolCall(id, name string, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	return s.write(toolCallFrame{Type: "tool_call", ID: id, Name: name, Arguments: args})
}

func (s *connSink) ToolResult(id, name, output string, isError bool) error {
	return s.write(toolResultFrame{Type: "tool_result", ID: id, Name: name, Output: output, IsError: isError})
}

func (s *connSink) Done(sessionID, model string) error {
	return s.write(doneFrame{Type: "done", SessionID: sessionID, Model: model})
}

func (s *connSink) Error(message string) error {
	return s.write(errorFrame{Type: "error", Message: message})
}
