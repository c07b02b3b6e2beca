package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/session"
	"go.uber.org/zap"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeView  = "view"
	MsgTypePong  = "pong"
	MsgTypeError = "error"
)

const (
	writeWait   = 10 * time.Second
	viewBacklog = 32
)

// WSMessage is the envelope for every websocket frame
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload is sent for messages the server does not understand
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams session views to the browser
type WebSocketHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket view handler
func NewWebSocketHandler(sessions *session.Manager, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logger,
	}
}

// HandleSessionSocket sends the current view, then one view per state change, until the client leaves
func (wsh *WebSocketHandler) HandleSessionSocket(c echo.Context) error {
	state, err := lookupSession(c, wsh.sessions)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := wsh.logger.With(zap.String("session", shortID(state.ID)))
	log.Debug("websocket client connected")

	closed := make(chan struct{})
	views := make(chan models.View, viewBacklog)
	cancel := state.Controller.Subscribe(func(v models.View) {
		select {
		case views <- v:
		case <-closed:
		}
	})
	defer cancel()

	// The read loop runs on its own goroutine; replies go through inbox so that
	// only this goroutine writes to the connection.
	inbox := make(chan WSMessage, 8)
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
			select {
			case inbox <- msg:
			case <-closed:
				return
			}
		}
	}()

	last := state.Controller.View()
	if err := wsh.sendView(ws, last); err != nil {
		return nil
	}

	for {
		select {
		case v := <-views:
			// Publishers race each other outside the controller lock.
			if !v.NewerThan(last) {
				continue
			}
			last = v
			if err := wsh.sendView(ws, v); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return nil
			}
		case msg := <-inbox:
			wsh.sessions.TouchSession(state.ID)
			var err error
			switch msg.Type {
			case MsgTypePing:
				err = wsh.send(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			default:
				err = wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
			}
			if err != nil {
				return nil
			}
		case <-closed:
			log.Debug("websocket client disconnected")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) sendView(ws *websocket.Conn, v models.View) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return wsh.send(ws, WSMessage{Type: MsgTypeView, Payload: payload, Timestamp: time.Now().UnixMilli()})
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) error {
	payload, _ := json.Marshal(WSErrorPayload{Message: message, Code: code})
	return wsh.send(ws, WSMessage{Type: MsgTypeError, Payload: payload, Timestamp: time.Now().UnixMilli()})
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(msg)
}
