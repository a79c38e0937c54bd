package handler

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/log"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理资源准备和归档查询相关的管理 API。
type AdminHandler struct {
	provisionService service.ProvisionService
	archiveService   service.ArchiveService
	defaults         config.Config
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。defaults 提供请求未指定时的名称、模型和文档路径。
func NewAdminHandler(provisionService service.ProvisionService, archiveService service.ArchiveService, defaults config.Config) *AdminHandler {
	return &AdminHandler{
		provisionService: provisionService,
		archiveService:   archiveService,
		defaults:         defaults,
	}
}

// RegisterDocumentsRequest 定义了登记文档 API 的请求体结构。
type RegisterDocumentsRequest struct {
	Paths           []string `json:"paths"`
	VectorStoreName string   `json:"vectorStoreName"`
	Force           bool     `json:"force"`
}

// RegisterDocuments 上传文档并创建向量库。
func (h *AdminHandler) RegisterDocuments(c *gin.Context) {
	var req RegisterDocumentsRequest
	// 空请求体表示全部使用配置中的默认值
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("RegisterDocuments: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid request payload", "data": nil})
		return
	}
	if len(req.Paths) == 0 {
		req.Paths = h.defaults.Documents.Paths
	}
	if req.VectorStoreName == "" {
		req.VectorStoreName = h.defaults.Documents.VectorStoreName
	}

	set, err := h.provisionService.RegisterDocuments(c.Request.Context(), req.Paths, service.DocumentOptions{
		VectorStoreName: req.VectorStoreName,
		Force:           req.Force,
	})
	if err != nil {
		h.fail(c, "RegisterDocuments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": set})
}

// RegisterAssistant 创建绑定向量库的助手。
func (h *AdminHandler) RegisterAssistant(c *gin.Context) {
	var spec service.AssistantSpec
	if err := c.ShouldBindJSON(&spec); err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("RegisterAssistant: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid request payload", "data": nil})
		return
	}
	if spec.Name == "" {
		spec.Name = h.defaults.Assistant.Name
	}
	if spec.Model == "" {
		spec.Model = h.defaults.Assistant.Model
	}
	if spec.Instructions == "" {
		spec.Instructions = h.defaults.Assistant.Instructions
	}

	assistantID, err := h.provisionService.RegisterAssistant(c.Request.Context(), spec)
	if err != nil {
		h.fail(c, "RegisterAssistant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"assistantId": assistantID}})
}

// GetProvisioning 返回资源台账。
func (h *AdminHandler) GetProvisioning(c *gin.Context) {
	ledger, err := h.provisionService.Ledger(c.Request.Context())
	if err != nil {
		log.Error("GetProvisioning: Failed to load ledger", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to load ledger", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": ledger})
}

// GetConversations 返回归档的问答记录，可按 sessionId 过滤。
func (h *AdminHandler) GetConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	conversations, err := h.archiveService.ListConversations(c.Query("sessionId"), limit)
	if err != nil {
		log.Error("GetConversations: Failed to list conversations", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to list conversations", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversations})
}

// fail 将登记错误映射为 HTTP 响应：输入或冲突类错误返回 4xx，服务商拒绝返回 502。
func (h *AdminHandler) fail(c *gin.Context, op string, err error) {
	log.Errorf("%s: %v", op, err)
	var ae *service.AssistantError
	if !errors.As(err, &ae) {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "internal error", "data": nil})
		return
	}
	var pathErr *fs.PathError
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, service.ErrDocumentSetExists):
		status = http.StatusConflict
	case ae.Err == nil, errors.As(err, &pathErr):
		// 未调用服务商即失败，属于请求本身的问题
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"code": status, "message": ae.Error(), "data": gin.H{"kind": ae.Kind, "reason": ae.Reason}})
}
