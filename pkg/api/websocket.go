package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is a generic WebSocket message.
type WSMessage struct {
	Type    string          `json:"type"`    // "evaluate", "distribution", "cubeful" or "ping"
	ID      string          `json:"id"`      // Request ID for correlating responses
	Payload json.RawMessage `json:"payload"` // Type-specific payload
}

// WSResponse is a generic WebSocket response.
type WSResponse struct {
	Type    string `json:"type"`              // "result", "error" or "pong"
	ID      string `json:"id,omitempty"`      // Request ID
	Payload any    `json:"payload,omitempty"` // Response data
	Error   string `json:"error,omitempty"`   // Error message if any
	Code    string `json:"code,omitempty"`    // Error code if any
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	conn     *websocket.Conn
	handlers *Handlers
	sendChan chan WSResponse
}

// WebSocket handles WebSocket connections for streaming lookups.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &WSClient{conn: conn, handlers: h, sendChan: make(chan WSResponse, 256)}
	go client.writePump()
	client.readPump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()
	for msg := range c.sendChan {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() { close(c.sendChan); c.conn.Close() }()
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *WSClient) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "evaluate":
		var req EvaluateRequest
		if c.decode(msg, &req) {
			c.reply(msg, func() (any, error) {
				board, err := req.Board()
				if err != nil {
					return nil, err
				}
				eval, err := c.handlers.engine.Evaluate(board)
				if err != nil {
					return nil, err
				}
				return EvalToResponse(board, eval), nil
			})
		}
	case "distribution":
		var req DistributionRequest
		if c.decode(msg, &req) {
			c.reply(msg, func() (any, error) { return c.handlers.distribution(req) })
		}
	case "cubeful":
		var req CubefulRequest
		if c.decode(msg, &req) {
			c.reply(msg, func() (any, error) { return c.handlers.cubeful(req) })
		}
	case "ping":
		c.sendChan <- WSResponse{Type: "pong", ID: msg.ID}
	default:
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: "unknown message type", Code: "UNKNOWN_TYPE"}
	}
}

func (c *WSClient) decode(msg WSMessage, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: "invalid payload", Code: "INVALID_JSON"}
		return false
	}
	return true
}

func (c *WSClient) reply(msg WSMessage, fn func() (any, error)) {
	payload, err := fn()
	if err != nil {
		_, code := errorStatus(err)
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: err.Error(), Code: code}
		return
	}
	c.sendChan <- WSResponse{Type: "result", ID: msg.ID, Payload: payload}
}
