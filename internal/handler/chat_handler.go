package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/token"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// maxQuestionBytes 限制单条入站消息的大小。
const maxQuestionBytes = 8 << 10

// frame 是服务端推送给页面的 WebSocket 消息。
type frame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// inbound 是页面发送的提问，也兼容纯文本消息。
type inbound struct {
	Content string `json:"content"`
}

// ChatHandler 负责处理 WebSocket 聊天连接。每个连接按顺序处理提问。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager}
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired session token", "data": nil})
		return
	}
	sessionID := claims.SessionID

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

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxQuestionBytes)

	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)
	if err := writeFrame(conn, frame{Type: "history", Data: snapshot.Transcript}); err != nil {
		log.Warnf("发送历史记录失败: %v", err)
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}
		if err := h.handleTurn(c, conn, sessionID, parseQuestion(message)); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			break
		}
	}
	log.Infof("WebSocket 连接已关闭，会话: %s", sessionID)
}

// handleTurn 完成一轮问答并依次推送 pending、message、completion。
func (h *ChatHandler) handleTurn(c *gin.Context, conn *websocket.Conn, sessionID, question string) error {
	if strings.TrimSpace(question) == "" {
		return writeFrame(conn, frame{Type: "error", Message: service.ErrEmptyQuestion.Error()})
	}
	if err := writeFrame(conn, frame{Type: "pending"}); err != nil {
		return err
	}

	entry, err := h.chatService.Submit(c.Request.Context(), sessionID, question)
	switch {
	case errors.Is(err, service.ErrTurnInProgress), errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrEmptyQuestion):
		return writeFrame(conn, frame{Type: "error", Message: err.Error()})
	case err != nil && entry.Role != model.RoleAssistant:
		// 未能写入记录的内部错误
		log.Errorf("处理提问失败: %v", err)
		return writeFrame(conn, frame{Type: "error", Message: service.UserMessage(err)})
	}

	if err := writeFrame(conn, frame{Type: "message", Data: entry}); err != nil {
		return err
	}
	status := "finished"
	if entry.Error {
		status = "failed"
	}
	return writeFrame(conn, frame{Type: "completion", Status: status})
}

func parseQuestion(message []byte) string {
	if len(message) > 0 && message[0] == '{' {
		var in inbound
		if err := json.Unmarshal(message, &in); err == nil {
			return in.Content
		}
	}
	return string(message)
}

func writeFrame(conn *websocket.Conn, f frame) error {
	f.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
