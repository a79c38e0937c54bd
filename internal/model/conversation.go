// Package model 包含了应用的数据模型定义。
package model

import "time"

// Conversation 代表一次已归档的问答交互。同一会话内 (session_id, asked_at) 唯一标识一轮问答。
type Conversation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_conversation_turn,priority:1" json:"sessionId"`
	ThreadID   string    `gorm:"type:varchar(64);index" json:"threadId"`
	RunID      string    `gorm:"type:varchar(64)" json:"runId"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	Failed     bool      `gorm:"not null;default:false" json:"failed"`
	AskedAt    time.Time `gorm:"uniqueIndex:idx_conversation_turn,priority:2" json:"askedAt"`
	AnsweredAt time.Time `json:"answeredAt"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationDTO 是管理接口返回的归档记录。
type ConversationDTO struct {
	ID         uint      `json:"id"`
	SessionID  string    `json:"sessionId"`
	ThreadID   string    `json:"threadId"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Failed     bool      `json:"failed"`
	AskedAt    LocalTime `json:"askedAt"`
	AnsweredAt LocalTime `json:"answeredAt"`
}

// ToDTO 转换为对外展示的结构。
func (c Conversation) ToDTO() ConversationDTO {
	return ConversationDTO{
		ID:         c.ID,
		SessionID:  c.SessionID,
		ThreadID:   c.ThreadID,
		Question:   c.Question,
		Answer:     c.Answer,
		Failed:     c.Failed,
		AskedAt:    LocalTime(c.AskedAt),
		AnsweredAt: LocalTime(c.AnsweredAt),
	}
}
