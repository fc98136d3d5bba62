package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/ernie-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ernie-chat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/reset_chat", h.handleReset)
	r.Get("/get_chat_history", h.handleHistory)
	r.Post("/new_session", h.handleNewSession)
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Generate(r.Context(), middleware.UserFromRequest(r), payload.Message)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// handleReset 清空会话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Reset(r.Context(), middleware.UserFromRequest(r)); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleHistory 返回前端展示用的聊天记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.chatSvc.History(r.Context(), middleware.UserFromRequest(r))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleNewSession 分配一个新的会话标识
func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"user_id": uuid.NewString()})
}

// RespondServiceError writes err with its mapped status. Server-side failures
// only expose the status text; the cause goes to the request logger.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	}
	utils.RespondError(w, status, PublicMessage(err))
}

// PublicMessage is the error text safe to hand to clients.
func PublicMessage(err error) string {
	if status := StatusFor(err); status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}

// StatusFor maps chat service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrInvalidUser), errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrCompletionUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
