// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slr-assistant-go/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionRepository 定义了聊天会话状态的存取接口。
// 会话包含缓存的线程 ID、状态机状态和按顺序追加的对话记录。
type SessionRepository interface {
	Create(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	GetThreadID(ctx context.Context, sessionID string) (string, error)
	// SetThreadIDIfAbsent 仅在会话尚无线程时写入，返回最终生效的线程 ID。
	SetThreadIDIfAbsent(ctx context.Context, sessionID, threadID string) (string, error)
	GetState(ctx context.Context, sessionID string) (model.SessionState, error)
	SetState(ctx context.Context, sessionID string, state model.SessionState) error
	AppendMessage(ctx context.Context, sessionID string, message model.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	// AcquireTurn 以 owner 身份获取单轮锁，RefreshTurn 与 ReleaseTurn 只对持有者生效。
	AcquireTurn(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error)
	RefreshTurn(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error)
	ReleaseTurn(ctx context.Context, sessionID, owner string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSessionRepository 创建一个新的 SessionRepository 实例，ttl 为会话的空闲过期时间。
func NewSessionRepository(redisClient *redis.Client, ttl time.Duration) SessionRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisSessionRepository{redisClient: redisClient, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s:transcript", sessionID)
}

func turnKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s:turn", sessionID)
}

// Create 初始化会话，状态为 NoThread。
func (r *redisSessionRepository) Create(ctx context.Context, sessionID string) error {
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, sessionKey(sessionID), "state", string(model.StateNoThread))
	pipe.Expire(ctx, sessionKey(sessionID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n > 0, nil
}

// GetThreadID 返回会话缓存的线程 ID，尚未创建时返回空字符串。
func (r *redisSessionRepository) GetThreadID(ctx context.Context, sessionID string) (string, error) {
	threadID, err := r.redisClient.HGet(ctx, sessionKey(sessionID), "thread").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get thread id: %w", err)
	}
	return threadID, nil
}

func (r *redisSessionRepository) SetThreadIDIfAbsent(ctx context.Context, sessionID, threadID string) (string, error) {
	key := sessionKey(sessionID)
	if err := r.redisClient.HSetNX(ctx, key, "thread", threadID).Err(); err != nil {
		return "", fmt.Errorf("failed to set thread id: %w", err)
	}
	r.touch(ctx, sessionID)
	current, err := r.redisClient.HGet(ctx, key, "thread").Result()
	if err != nil {
		return "", fmt.Errorf("failed to get thread id: %w", err)
	}
	return current, nil
}

func (r *redisSessionRepository) GetState(ctx context.Context, sessionID string) (model.SessionState, error) {
	state, err := r.redisClient.HGet(ctx, sessionKey(sessionID), "state").Result()
	if err == redis.Nil {
		return model.StateNoThread, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session state: %w", err)
	}
	return model.SessionState(state), nil
}

func (r *redisSessionRepository) SetState(ctx context.Context, sessionID string, state model.SessionState) error {
	if err := r.redisClient.HSet(ctx, sessionKey(sessionID), "state", string(state)).Err(); err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	r.touch(ctx, sessionID)
	return nil
}

// AppendMessage 追加一条对话记录，保持插入顺序。
func (r *redisSessionRepository) AppendMessage(ctx context.Context, sessionID string, message model.ChatMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	if err := r.redisClient.RPush(ctx, transcriptKey(sessionID), jsonData).Err(); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	r.touch(ctx, sessionID)
	return nil
}

// ListMessages 按插入顺序返回完整的对话记录。
func (r *redisSessionRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// releaseTurnScript 仅当锁仍属于调用方时删除。
var releaseTurnScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshTurnScript 仅当锁仍属于调用方时延长过期时间。
var refreshTurnScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// AcquireTurn 获取会话的单轮锁，同一会话同一时刻只允许一个进行中的 Run。
func (r *redisSessionRepository) AcquireTurn(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, turnKey(sessionID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire turn lock: %w", err)
	}
	return ok, nil
}

// RefreshTurn 延长锁的过期时间，返回 false 表示锁已过期或被他人持有。
func (r *redisSessionRepository) RefreshTurn(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshTurnScript.Run(ctx, r.redisClient, []string{turnKey(sessionID)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh turn lock: %w", err)
	}
	return n == 1, nil
}

func (r *redisSessionRepository) ReleaseTurn(ctx context.Context, sessionID, owner string) error {
	if err := releaseTurnScript.Run(ctx, r.redisClient, []string{turnKey(sessionID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release turn lock: %w", err)
	}
	return nil
}

// touch 刷新会话相关键的过期时间，失败不影响主流程。
func (r *redisSessionRepository) touch(ctx context.Context, sessionID string) {
	pipe := r.redisClient.Pipeline()
	pipe.Expire(ctx, sessionKey(sessionID), r.ttl)
	pipe.Expire(ctx, transcriptKey(sessionID), r.ttl)
	_, _ = pipe.Exec(ctx)
}
