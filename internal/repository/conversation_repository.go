package repository

import (
	"slr-assistant-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository 定义了问答归档记录的操作接口。
type ConversationRepository interface {
	// Create 写入一轮问答，同一轮重复写入时忽略。
	Create(conversation *model.Conversation) error
	FindBySession(sessionID string, limit int) ([]model.Conversation, error)
	FindRecent(limit int) ([]model.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(conversation *model.Conversation) error {
	// 归档消息可能被重复投递，依赖 (session_id, asked_at) 唯一索引去重
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(conversation).Error
}

// FindBySession 按提问时间正序返回某个会话的归档记录。
func (r *conversationRepository) FindBySession(sessionID string, limit int) ([]model.Conversation, error) {
	var conversations []model.Conversation
	query := r.db.Where("session_id = ?", sessionID).Order("asked_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&conversations).Error
	return conversations, err
}

// FindRecent 返回最近的归档记录，新的在前。
func (r *conversationRepository) FindRecent(limit int) ([]model.Conversation, error) {
	var conversations []model.Conversation
	query := r.db.Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&conversations).Error
	return conversations, err
}
