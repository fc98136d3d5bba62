package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatHandler "github.com/zhouzirui/ernie-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/ernie-chat/backend/internal/logging"
	"github.com/zhouzirui/ernie-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
)

const (
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler runs chat turns over a websocket, one request/response pair per
// inbound frame.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a new websocket chat handler
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logging.Component(logger, "websocket"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

// Inbound frame types.
const (
	TypeChat  = "chat"
	TypeReset = "reset"
)

// Outbound frame types.
const (
	TypeConnected = "connected"
	TypeResponse  = "response"
	TypeError     = "error"
)

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	Response  string `json:"response,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := chatService.NormalizeUser(middleware.UserFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Info().Str("user", user).Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{Type: TypeConnected, UserID: user})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("user", user).Msg("read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, conn, user, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, user string, msg inboundMessage) {
	switch msg.Type {
	case TypeReset:
		if err := h.chatSvc.Reset(ctx, user); err != nil {
			h.sendServiceError(conn, user, err)
			return
		}
		h.send(conn, outgoingMessage{Type: TypeResponse, Status: "success"})
	case TypeChat, "":
		reply, err := h.chatSvc.Generate(ctx, user, msg.Message)
		if err != nil {
			h.sendServiceError(conn, user, err)
			return
		}
		h.send(conn, outgoingMessage{Type: TypeResponse, Response: reply})
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("write failed")
	}
}

func (h *Handler) sendServiceError(conn *websocket.Conn, user string, err error) {
	if chatHandler.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("user", user).Msg("turn failed")
	}
	h.sendError(conn, chatHandler.PublicMessage(err))
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, outgoingMessage{Type: TypeError, Error: message})
}
