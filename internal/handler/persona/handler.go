package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/ernie-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/ernie-chat/backend/internal/middleware"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/persona"
	chatService "github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ernie-chat/backend/pkg/utils"
)

// Handler 机器人配置的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建配置处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册配置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/get_config", h.handleGetConfig)
	r.Post("/save_config", h.handleSaveConfig)
}

// handleGetConfig 返回不含密钥的配置，敏感词只读
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Config())
}

// handleSaveConfig 更新配置并重置会话
func (h *Handler) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var update persona.Update
	if err := utils.DecodeJSON(r, &update); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.chatSvc.UpdateConfig(r.Context(), middleware.UserFromRequest(r), update); err != nil {
		chatHandler.RespondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
