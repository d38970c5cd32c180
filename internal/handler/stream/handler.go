package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatHandler "github.com/zhouzirui/z-clinic/backend/internal/handler/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/observability"
	chatService "github.com/zhouzirui/z-clinic/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	// maxFrameBytes caps one inbound frame; larger frames close the connection.
	maxFrameBytes = 64 << 10
)

// Inbound frame types.
const (
	TypeStart   = "start"
	TypeChat    = "chat"
	TypeStatus  = "status"
	TypeRestart = "restart"
)

// Outbound frame types.
const (
	TypeConnected = "connected"
	TypeTurn      = "turn"
	TypeRestarted = "restarted"
	TypeError     = "error"
)

// Handler 通过 WebSocket 驱动会话状态机，每个入站帧对应一次会话操作。
type Handler struct {
	chatSvc  *chatService.Service
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// New creates the websocket turn handler. metrics may be nil.
func New(chatSvc *chatService.Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

// InboundMessage is a client frame.
type InboundMessage struct {
	Type               string `json:"type"`
	Message            string `json:"message,omitempty"`
	PreviousResponseID string `json:"previousResponseId,omitempty"`
}

// OutgoingMessage is a server frame.
type OutgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	ws        *websocket.Conn
	sessionID string
	metrics   *observability.Metrics

	mu sync.Mutex
}

func (c *connection) send(msgType string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := OutgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed for session %s: %v", msgType, c.sessionID, err)
		return
	}
	c.metrics.WSMessage("out", msgType)
}

func (c *connection) sendError(message string) {
	c.send(TypeError, map[string]string{"message": message})
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameBytes)

	conn := &connection{ws: ws, sessionID: sessionID, metrics: h.metrics}
	log.Printf("[ws] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, ws)

	if status, err := h.chatSvc.Status(ctx, sessionID); err == nil {
		conn.send(TypeConnected, status)
	}

	for {
		var msg InboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for session %s: %v", sessionID, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		h.metrics.WSMessage("in", msg.Type)

		h.handleMessage(ctx, conn, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *connection, msg InboundMessage) {
	switch msg.Type {
	case TypeStart:
		res, err := h.chatSvc.Start(ctx, conn.sessionID)
		if err != nil {
			conn.sendError(errorMessage(err))
			return
		}
		conn.send(TypeTurn, chatHandler.NewTurnResponse(res))

	case TypeChat:
		if strings.TrimSpace(msg.Message) == "" {
			conn.sendError("message is required")
			return
		}
		res, err := h.chatSvc.SubmitTurn(ctx, conn.sessionID, msg.Message, strings.TrimSpace(msg.PreviousResponseID))
		if err != nil {
			conn.sendError(errorMessage(err))
			return
		}
		conn.send(TypeTurn, chatHandler.NewTurnResponse(res))

	case TypeStatus:
		status, err := h.chatSvc.Status(ctx, conn.sessionID)
		if err != nil {
			conn.sendError(errorMessage(err))
			return
		}
		conn.send(TypeStatus, status)

	case TypeRestart:
		if err := h.chatSvc.Restart(ctx, conn.sessionID); err != nil {
			conn.sendError(errorMessage(err))
			return
		}
		conn.send(TypeRestarted, map[string]bool{"success": true})

	default:
		conn.sendError("unsupported message type: " + msg.Type)
	}
}

func errorMessage(err error) string {
	if errors.Is(err, chatService.ErrInvalidState) || errors.Is(err, chatService.ErrSessionIDRequired) {
		return err.Error()
	}
	log.Printf("[ws] operation failed: %v", err)
	return "internal error"
}

// pingLoop 定期发送ping消息。WriteControl 可与其他写操作并发调用。
func pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
