// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration 表示配置缺失或非法，属于启动期致命错误。
var ErrConfiguration = errors.New("configuration error")

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 进程启动时加载一次，之后只读，通过构造函数显式传入各组件。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Chat      ChatConfig      `mapstructure:"chat"`
	UI        UIConfig        `mapstructure:"ui"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OpenAIConfig 存储模型服务商 API 的配置。密钥本身不写入配置文件，只记录环境变量名。
type OpenAIConfig struct {
	APIKeyEnv      string        `mapstructure:"api_key_env"`
	BaseURL        string        `mapstructure:"base_url"`
	OrgID          string        `mapstructure:"org_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AssistantConfig 描述助手的注册参数。ID 为空时由服务启动时从登记表中解析。
type AssistantConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Model        string `mapstructure:"model"`
	Instructions string `mapstructure:"instructions"`
}

// DocumentsConfig 描述默认文档集合。
type DocumentsConfig struct {
	VectorStoreName string   `mapstructure:"vector_store_name"`
	Paths           []string `mapstructure:"paths"`
}

// ChatConfig 存储会话管理相关的参数。
type ChatConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	MessageLimit int           `mapstructure:"message_limit"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 控制对瞬时网络错误的有限重试。
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// UIConfig 存储聊天页面的展示文案。
type UIConfig struct {
	Title       string `mapstructure:"title"`
	Intro       string `mapstructure:"intro"`
	Placeholder string `mapstructure:"placeholder"`
}

// JWTConfig 存储会话令牌相关的配置。
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	SessionExpireHours int    `mapstructure:"session_expire_hours"`
}

// AdminConfig 存储管理接口的认证配置。
type AdminConfig struct {
	KeyHash string `mapstructure:"key_hash"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不启用文档归档。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Enabled 报告是否配置了 MinIO。
func (c MinIOConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时对话归档同步执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// Enabled 报告是否配置了 Kafka。
func (c KafkaConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	// AutomaticEnv 只覆盖已知的键，需要环境变量覆盖的键都要在这里登记
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("assistant.id", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("admin.key_hash", "")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("openai.request_timeout", 60*time.Second)
	v.SetDefault("assistant.name", "Sea Level Rise Arcata Assistant")
	v.SetDefault("assistant.instructions", "You are a neutral third-party with knowledge of key policy, grants, "+
		"and studies related to sea level rise in the City of Arcata in Humboldt County, California. Speak tersely. "+
		"As much as possible, cite and quote from documents to support your answers.")
	v.SetDefault("assistant.model", "gpt-3.5-turbo-0125")
	v.SetDefault("documents.vector_store_name", "Sea Level Rise Documents")
	v.SetDefault("chat.poll_interval", 2*time.Second)
	v.SetDefault("chat.run_timeout", 2*time.Minute)
	v.SetDefault("chat.message_limit", 20)
	v.SetDefault("chat.session_ttl", 24*time.Hour)
	v.SetDefault("chat.retry.max_retries", 3)
	v.SetDefault("chat.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("chat.retry.max_interval", 5*time.Second)
	v.SetDefault("ui.title", "Sea Level Rise Assistant")
	v.SetDefault("ui.intro", "Hello! I'm a chatbot powered by OpenAI's GPT-3.5. I can answer questions about sea level rise in Arcata, "+
		"using information from the City of Arcata's 2018 Sea Level Rise Vulnerability Assessment and the City of "+
		"Arcata's 2023 Draft Local Coastal Program Update. Feel free to ask me about these documents or sea level rise in Arcata in general.")
	v.SetDefault("ui.placeholder", "Hi! Ask me about sea level rise in Arcata, California.")
	v.SetDefault("jwt.session_expire_hours", 24)
	v.SetDefault("kafka.topic", "slr-conversation-turns")
	v.SetDefault("kafka.group_id", "slr-assistant-archiver")
}

// Load 从指定路径读取 YAML 配置，叠加 SLR_ 前缀的环境变量，解析并校验。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SLR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置中会导致运行期失败的取值。
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Port) == "":
		return fmt.Errorf("%w: server.port is required", ErrConfiguration)
	case strings.TrimSpace(c.Assistant.Model) == "":
		return fmt.Errorf("%w: assistant.model is required", ErrConfiguration)
	case c.Chat.PollInterval <= 0:
		return fmt.Errorf("%w: chat.poll_interval must be positive", ErrConfiguration)
	case c.Chat.RunTimeout <= 0:
		return fmt.Errorf("%w: chat.run_timeout must be positive", ErrConfiguration)
	case c.Chat.RunTimeout < c.Chat.PollInterval:
		return fmt.Errorf("%w: chat.run_timeout must not be shorter than chat.poll_interval", ErrConfiguration)
	case strings.TrimSpace(c.JWT.Secret) == "":
		return fmt.Errorf("%w: jwt.secret is required", ErrConfiguration)
	}
	return nil
}

// LoadCredential 从环境变量读取服务商密钥，缺失或为空时立即失败，不做重试。
func LoadCredential(cfg OpenAIConfig) (string, error) {
	name := cfg.APIKeyEnv
	if name == "" {
		name = "OPENAI_API_KEY"
	}
	value, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrConfiguration, name)
	}
	return strings.TrimSpace(value), nil
}
