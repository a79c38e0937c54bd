// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"embed"
	"html/template"
	"net/http"
	"slr-assistant-go/internal/config"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates 解析内嵌的页面模板，供 gin.Engine.SetHTMLTemplate 使用。
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// PageHandler 渲染聊天页面。
type PageHandler struct {
	ui config.UIConfig
}

// NewPageHandler 创建一个新的 PageHandler。
func NewPageHandler(ui config.UIConfig) *PageHandler {
	return &PageHandler{ui: ui}
}

// Index 返回聊天页面。
func (h *PageHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Title":       h.ui.Title,
		"Intro":       h.ui.Intro,
		"Placeholder": h.ui.Placeholder,
	})
}
