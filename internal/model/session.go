// Package model 包含了应用的数据模型定义。
package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 代表会话记录中的一条消息，存储在 Redis 中。
// Error 为 true 表示这是一条失败提示而非助手的回答。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Error     bool      `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState 是会话管理器的状态机状态。
type SessionState string

const (
	StateNoThread    SessionState = "no_thread"
	StateThreadOpen  SessionState = "thread_open"
	StateAwaitingRun SessionState = "awaiting_run"
	StateRunComplete SessionState = "run_complete"
	StateFailed      SessionState = "failed"
)

// ChatSession 是一个会话的只读快照。
type ChatSession struct {
	ID         string        `json:"sessionId"`
	ThreadID   string        `json:"threadId,omitempty"`
	State      SessionState  `json:"state"`
	Transcript []ChatMessage `json:"transcript"`
}
