// Package pipeline 定义了问答归档的处理流程。
package pipeline

import (
	"context"
	"fmt"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/tasks"
)

// Archiver 将问答轮次写入归档表。既作为 Kafka 消费者的处理器，也可在未启用 Kafka 时直接调用。
type Archiver struct {
	repo repository.ConversationRepository
}

// NewArchiver 创建一个新的 Archiver 实例。
func NewArchiver(repo repository.ConversationRepository) *Archiver {
	return &Archiver{repo: repo}
}

// Process 保存一条归档记录。
func (a *Archiver) Process(ctx context.Context, task tasks.TurnArchiveTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task.SessionID == "" {
		return fmt.Errorf("归档任务缺少 session id")
	}
	conversation := &model.Conversation{
		SessionID:  task.SessionID,
		ThreadID:   task.ThreadID,
		RunID:      task.RunID,
		Question:   task.Question,
		Answer:     task.Answer,
		Failed:     task.Failed,
		AskedAt:    task.AskedAt,
		AnsweredAt: task.AnsweredAt,
	}
	if err := a.repo.Create(conversation); err != nil {
		return fmt.Errorf("保存归档记录失败: %w", err)
	}
	log.Infof("[Archiver] 问答已归档, session=%s, run=%s", task.SessionID, task.RunID)
	return nil
}

// Send 同步归档，在未配置 Kafka 时作为问答的归档出口。
func (a *Archiver) Send(ctx context.Context, task tasks.TurnArchiveTask) error {
	return a.Process(ctx, task)
}
