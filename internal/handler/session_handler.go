package handler

import (
	"errors"
	"net/http"
	"slr-assistant-go/internal/middleware"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责创建和查询聊天会话。
type SessionHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(chatService service.ChatService, jwtManager *token.JWTManager) *SessionHandler {
	return &SessionHandler{chatService: chatService, jwtManager: jwtManager}
}

// Create 创建新会话并签发会话令牌。
func (h *SessionHandler) Create(c *gin.Context) {
	session, err := h.chatService.StartSession(c.Request.Context())
	if err != nil {
		log.Error("创建会话失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to create session", "data": nil})
		return
	}
	tok, err := h.jwtManager.GenerateToken(session.ID)
	if err != nil {
		log.Error("签发会话令牌失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to issue session token", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"sessionId": session.ID, "token": tok}})
}

// Current 返回当前会话的快照。
func (h *SessionHandler) Current(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionIDKey)
	snapshot, err := h.chatService.Snapshot(c.Request.Context(), sessionID)
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error(), "data": nil})
		return
	}
	if err != nil {
		log.Error("获取会话快照失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to load session", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": snapshot})
}
