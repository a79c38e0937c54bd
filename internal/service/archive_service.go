package service

import (
	"fmt"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/repository"
)

// defaultArchiveLimit 是未指定会话时返回的最大记录数。
const defaultArchiveLimit = 100

// ArchiveService 查询已归档的问答记录。
type ArchiveService interface {
	ListConversations(sessionID string, limit int) ([]model.ConversationDTO, error)
}

type archiveService struct {
	repo repository.ConversationRepository
}

// NewArchiveService 创建一个新的 ArchiveService 实例。
func NewArchiveService(repo repository.ConversationRepository) ArchiveService {
	return &archiveService{repo: repo}
}

// ListConversations 指定 sessionID 时按时间正序返回该会话的记录，否则返回最近的记录。
func (s *archiveService) ListConversations(sessionID string, limit int) ([]model.ConversationDTO, error) {
	var (
		conversations []model.Conversation
		err           error
	)
	if sessionID != "" {
		conversations, err = s.repo.FindBySession(sessionID, limit)
	} else {
		if limit <= 0 || limit > defaultArchiveLimit {
			limit = defaultArchiveLimit
		}
		conversations, err = s.repo.FindRecent(limit)
	}
	if err != nil {
		return nil, fmt.Errorf("查询归档记录失败: %w", err)
	}
	dtos := make([]model.ConversationDTO, 0, len(conversations))
	for _, c := range conversations {
		dtos = append(dtos, c.ToDTO())
	}
	return dtos, nil
}
