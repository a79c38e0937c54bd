// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/tasks"
	"strings"
	"time"

	"github.com/google/uuid"
)

// turnLockMargin 是单轮锁在 Run 超时之外额外保留的时间，锁在本轮期间持续续期。
const turnLockMargin = 30 * time.Second

// TurnSink 接收已完成的问答轮次用于归档。
type TurnSink interface {
	Send(ctx context.Context, task tasks.TurnArchiveTask) error
}

// AssistantResolver 返回当前应当使用的助手 ID。
type AssistantResolver func(ctx context.Context) (string, error)

// ChatService 拥有会话状态，对渲染层只暴露快照与追加操作。
type ChatService interface {
	StartSession(ctx context.Context) (*model.ChatSession, error)
	// Submit 处理一轮问答，返回追加到记录中的助手条目。失败时条目为错误提示，同时返回错误。
	Submit(ctx context.Context, sessionID, text string) (model.ChatMessage, error)
	Snapshot(ctx context.Context, sessionID string) (*model.ChatSession, error)
}

type chatService struct {
	sessions      repository.SessionRepository
	conversations ConversationService
	resolve       AssistantResolver
	sink          TurnSink
	lockTTL       time.Duration
}

// NewChatService 创建一个新的 ChatService 实例。sink 可以为 nil，此时不归档。
func NewChatService(sessions repository.SessionRepository, conversations ConversationService, resolve AssistantResolver, sink TurnSink, runTimeout time.Duration) ChatService {
	return &chatService{
		sessions:      sessions,
		conversations: conversations,
		resolve:       resolve,
		sink:          sink,
		lockTTL:       runTimeout + turnLockMargin,
	}
}

func (s *chatService) StartSession(ctx context.Context) (*model.ChatSession, error) {
	sessionID := uuid.NewString()
	if err := s.sessions.Create(ctx, sessionID); err != nil {
		return nil, err
	}
	log.Infof("新会话已创建: %s", sessionID)
	return &model.ChatSession{ID: sessionID, State: model.StateNoThread, Transcript: []model.ChatMessage{}}, nil
}

func (s *chatService) Submit(ctx context.Context, sessionID, text string) (model.ChatMessage, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return model.ChatMessage{}, ErrEmptyQuestion
	}
	exists, err := s.sessions.Exists(ctx, sessionID)
	if err != nil {
		return model.ChatMessage{}, err
	}
	if !exists {
		return model.ChatMessage{}, ErrSessionNotFound
	}

	owner := uuid.NewString()
	acquired, err := s.sessions.AcquireTurn(ctx, sessionID, owner, s.lockTTL)
	if err != nil {
		return model.ChatMessage{}, err
	}
	if !acquired {
		return model.ChatMessage{}, ErrTurnInProgress
	}
	stopRefresh := s.keepTurn(ctx, sessionID, owner)
	defer func() {
		stopRefresh()
		if err := s.sessions.ReleaseTurn(context.WithoutCancel(ctx), sessionID, owner); err != nil {
			log.Warnf("释放会话锁失败: %v", err)
		}
	}()

	askedAt := time.Now()
	if err := s.sessions.AppendMessage(ctx, sessionID, model.ChatMessage{
		Role: model.RoleUser, Content: question, Timestamp: askedAt,
	}); err != nil {
		return model.ChatMessage{}, fmt.Errorf("保存用户消息失败: %w", err)
	}

	threadID, runID, answer, turnErr := s.answer(ctx, sessionID, question)

	entry := model.ChatMessage{Role: model.RoleAssistant, Content: answer, Timestamp: time.Now()}
	state := model.StateRunComplete
	if turnErr != nil {
		log.Errorf("会话 %s 问答失败: %v", sessionID, turnErr)
		entry.Content = UserMessage(turnErr)
		entry.Error = true
		state = model.StateFailed
	}

	// 回答或错误提示必须落入记录，使用不可取消的 ctx 保证与用户消息成对
	persistCtx := context.WithoutCancel(ctx)
	if err := s.sessions.AppendMessage(persistCtx, sessionID, entry); err != nil {
		return entry, fmt.Errorf("保存助手消息失败: %w", err)
	}
	if err := s.sessions.SetState(persistCtx, sessionID, state); err != nil {
		log.Warnf("更新会话状态失败: %v", err)
	}

	s.archive(persistCtx, tasks.TurnArchiveTask{
		SessionID:  sessionID,
		ThreadID:   threadID,
		RunID:      runID,
		Question:   question,
		Answer:     entry.Content,
		Failed:     entry.Error,
		AskedAt:    askedAt,
		AnsweredAt: entry.Timestamp,
	})
	return entry, turnErr
}

// keepTurn 在本轮进行期间定期续期单轮锁，返回的函数停止续期。
// lockTTL 只是进程崩溃后锁自动失效的上限，不限制单轮的实际耗时。
func (s *chatService) keepTurn(ctx context.Context, sessionID, owner string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	refreshCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				held, err := s.sessions.RefreshTurn(refreshCtx, sessionID, owner, s.lockTTL)
				if err != nil {
					log.Warnf("续期会话锁失败: %v", err)
				} else if !held {
					log.Warnf("会话 %s 的单轮锁已丢失", sessionID)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// answer 确保线程存在后完成一次问答。
func (s *chatService) answer(ctx context.Context, sessionID, question string) (threadID, runID, text string, err error) {
	threadID, err = s.conversations.EnsureThread(ctx, sessionID)
	if err != nil {
		return "", "", "", err
	}
	assistantID, err := s.resolve(ctx)
	if err != nil {
		return threadID, "", "", err
	}
	if err := s.sessions.SetState(ctx, sessionID, model.StateAwaitingRun); err != nil {
		log.Warnf("更新会话状态失败: %v", err)
	}
	result, err := s.conversations.Ask(ctx, threadID, assistantID, question)
	if err != nil {
		return threadID, result.RunID, "", err
	}
	return threadID, result.RunID, result.Text, nil
}

// archive 发送归档任务，失败不影响本轮问答。
func (s *chatService) archive(ctx context.Context, task tasks.TurnArchiveTask) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Send(ctx, task); err != nil {
		log.Warnf("归档问答失败, session=%s: %v", task.SessionID, err)
	}
}

func (s *chatService) Snapshot(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	exists, err := s.sessions.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSessionNotFound
	}
	threadID, err := s.sessions.GetThreadID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := s.sessions.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.sessions.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.ChatSession{ID: sessionID, ThreadID: threadID, State: state, Transcript: transcript}, nil
}
