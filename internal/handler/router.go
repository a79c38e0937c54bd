package handler

import (
	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/middleware"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的业务服务。
type Services struct {
	Chat      service.ChatService
	Provision service.ProvisionService
	Archive   service.ArchiveService
}

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(cfg config.Config, svc Services, jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.SetHTMLTemplate(Templates())

	r.GET("/", NewPageHandler(cfg.UI).Index)
	r.GET("/chat/:token", NewChatHandler(svc.Chat, jwtManager).Handle)

	apiV1 := r.Group("/api/v1")
	{
		sessionHandler := NewSessionHandler(svc.Chat, jwtManager)
		sessions := apiV1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/current", middleware.SessionAuth(jwtManager), sessionHandler.Current)
		}

		adminHandler := NewAdminHandler(svc.Provision, svc.Archive, cfg)
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(cfg.Admin.KeyHash))
		{
			admin.POST("/documents", adminHandler.RegisterDocuments)
			admin.POST("/assistants", adminHandler.RegisterAssistant)
			admin.GET("/provisioning", adminHandler.GetProvisioning)
			admin.GET("/conversations", adminHandler.GetConversations)
		}
	}
	return r
}
