// Package main 是聊天服务的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/handler"
	"slr-assistant-go/internal/pipeline"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/assistant"
	"slr-assistant-go/pkg/database"
	"slr-assistant-go/pkg/kafka"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/storage"
	"slr-assistant-go/pkg/token"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("SLR_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	apiKey, err := config.LoadCredential(cfg.OpenAI)
	if err != nil {
		log.Fatal("读取服务商密钥失败", err)
	}

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := repository.AutoMigrate(database.DB); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var archive storage.DocumentArchive
	if cfg.MinIO.Enabled() {
		minioArchive, err := storage.NewMinIOArchive(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		archive = minioArchive
	}

	// 4. 初始化 Repository
	sessionRepo := repository.NewSessionRepository(database.RDB, cfg.Chat.SessionTTL)
	provisionRepo := repository.NewProvisionRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	client := assistant.NewClient(assistant.Config{
		APIKey:         apiKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		OrgID:          cfg.OpenAI.OrgID,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	})
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.SessionExpireHours)
	provisionService := service.NewProvisionService(client, provisionRepo, archive)
	archiveService := service.NewArchiveService(conversationRepo)
	conversationService := service.NewConversationService(client, sessionRepo, cfg.Chat)
	resolve := func(ctx context.Context) (string, error) {
		return provisionService.ResolveAssistantID(ctx, cfg.Assistant.ID, cfg.Assistant.Name)
	}
	if id, err := resolve(rootCtx); err != nil {
		// 启动时未就绪不致命，管理接口登记后即可使用
		log.Warnf("助手尚未就绪: %v", err)
	} else {
		log.Infof("使用助手: %s", id)
	}

	// 6. 对话归档：配置 Kafka 时异步消费，否则同步写库
	archiver := pipeline.NewArchiver(conversationRepo)
	var sink service.TurnSink = archiver
	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka)
		sink = producer
		go kafka.StartConsumer(rootCtx, cfg.Kafka, archiver)
	}
	chatService := service.NewChatService(sessionRepo, conversationService, resolve, sink, cfg.Chat.RunTimeout)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(*cfg, handler.Services{
		Chat:      chatService,
		Provision: provisionService,
		Archive:   archiveService,
	}, jwtManager)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先停止 Kafka 消费者，再等待进行中的请求
	cancelRoot()

	// 轮询中的提问最长持续 run_timeout，留出同样的余量
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chat.RunTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
