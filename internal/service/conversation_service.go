package service

import (
	"context"
	"errors"
	"fmt"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/assistant"
	"slr-assistant-go/pkg/log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errRunPending 表示 Run 仍在进行中，轮询需要继续。
var errRunPending = errors.New("run still in progress")

// cancelGrace 是超时后尝试取消 Run 的时间上限。
const cancelGrace = 10 * time.Second

// Answer 是一次成功问答的结果。
type Answer struct {
	Text    string
	RunID   string
	Polls   int
	Elapsed time.Duration
}

// ConversationService 管理会话对应的服务商线程，并在线程上完成一次问答。
type ConversationService interface {
	// EnsureThread 返回会话的线程 ID，首次调用时创建。同一会话内多次调用返回相同的 ID。
	EnsureThread(ctx context.Context, sessionID string) (string, error)
	// Ask 追加用户消息、启动 Run、轮询直至结束并返回助手的回答。
	// 要么返回非空回答，要么返回 *AssistantError。
	Ask(ctx context.Context, threadID, assistantID, userText string) (Answer, error)
}

type conversationService struct {
	client   assistant.Client
	sessions repository.SessionRepository
	cfg      config.ChatConfig
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(client assistant.Client, sessions repository.SessionRepository, cfg config.ChatConfig) ConversationService {
	return &conversationService{client: client, sessions: sessions, cfg: cfg}
}

func (s *conversationService) EnsureThread(ctx context.Context, sessionID string) (string, error) {
	threadID, err := s.sessions.GetThreadID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("读取会话线程失败: %w", err)
	}
	if threadID != "" {
		return threadID, nil
	}

	created, err := backoff.RetryNotifyWithData(func() (string, error) {
		id, err := s.client.CreateThread(ctx)
		return id, classify(ctx, err)
	}, s.retryPolicy(ctx), s.notify("创建线程"))
	if err != nil {
		return "", newAssistantError(KindThreadCreation, assistant.Reason(err), err)
	}

	// 并发创建时以先写入者为准
	threadID, err = s.sessions.SetThreadIDIfAbsent(ctx, sessionID, created)
	if err != nil {
		return "", fmt.Errorf("保存会话线程失败: %w", err)
	}
	if threadID != created {
		log.Warnf("会话 %s 已有线程 %s，丢弃新建的线程 %s", sessionID, threadID, created)
		return threadID, nil
	}
	if err := s.sessions.SetState(ctx, sessionID, model.StateThreadOpen); err != nil {
		log.Warnf("更新会话状态失败: %v", err)
	}
	log.Infof("会话 %s 创建线程成功, ThreadID: %s", sessionID, threadID)
	return threadID, nil
}

func (s *conversationService) Ask(ctx context.Context, threadID, assistantID, userText string) (Answer, error) {
	start := time.Now()

	if _, err := s.client.CreateMessage(ctx, threadID, userText); err != nil {
		return Answer{}, newAssistantError(KindMessageAppend, assistant.Reason(err), err)
	}

	run, err := s.client.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return Answer{}, newAssistantError(KindRunStart, assistant.Reason(err), err)
	}
	log.Infof("Run 已启动, ThreadID: %s, RunID: %s", threadID, run.ID)

	run, polls, err := s.waitForRun(ctx, threadID, run.ID)
	if err != nil {
		return Answer{}, err
	}

	text, err := s.latestAnswer(ctx, threadID, run.ID)
	if err != nil {
		return Answer{}, err
	}

	elapsed := time.Since(start)
	if run.CompletedAt != nil && run.CreatedAt > 0 {
		elapsed = time.Duration(*run.CompletedAt-run.CreatedAt) * time.Second
	}
	log.Infof("Run 完成, RunID: %s, 轮询 %d 次, 耗时 %s", run.ID, polls, elapsed)
	return Answer{Text: text, RunID: run.ID, Polls: polls, Elapsed: elapsed}, nil
}

// waitForRun 以固定间隔轮询 Run 状态，直到终态、超时或 ctx 被取消。
func (s *conversationService) waitForRun(ctx context.Context, threadID, runID string) (assistant.Run, int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	polls := 0
	policy := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PollInterval), waitCtx)
	run, err := backoff.RetryWithData(func() (assistant.Run, error) {
		polls++
		run, err := s.client.RetrieveRun(waitCtx, threadID, runID)
		if err != nil {
			if waitCtx.Err() == nil && assistant.IsTransient(err) {
				log.Warnf("查询 Run 状态失败，将继续轮询: %v", err)
				return run, err
			}
			return run, backoff.Permanent(err)
		}
		if !run.Status.Terminal() {
			log.Infof("等待 Run 完成, RunID: %s, 状态: %s", runID, run.Status)
			return run, errRunPending
		}
		return run, nil
	}, policy)

	if err != nil {
		if ctx.Err() != nil {
			s.cancelRun(ctx, threadID, runID)
			return run, polls, ctx.Err()
		}
		if waitCtx.Err() != nil {
			s.cancelRun(ctx, threadID, runID)
			log.Errorf("Run 超时, RunID: %s, 超时时间: %s", runID, s.cfg.RunTimeout)
			return run, polls, newAssistantError(KindRunTimeout, fmt.Sprintf("no result within %s", s.cfg.RunTimeout), err)
		}
		return run, polls, newAssistantError(KindRunFailed, assistant.Reason(err), err)
	}

	if run.Status != assistant.RunStatusCompleted {
		reason := run.FailureCode
		if reason == "" {
			reason = run.FailureMessage
		}
		if reason == "" {
			reason = string(run.Status)
		}
		log.Errorf("Run 失败, RunID: %s, 状态: %s, 原因: %s", runID, run.Status, reason)
		return run, polls, newAssistantError(KindRunFailed, reason, nil)
	}
	return run, polls, nil
}

// cancelRun 尽力取消仍在进行的 Run，失败只记录日志。
func (s *conversationService) cancelRun(ctx context.Context, threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
	defer cancel()
	if _, err := s.client.CancelRun(cancelCtx, threadID, runID); err != nil {
		log.Warnf("取消 Run 失败, RunID: %s, Error: %v", runID, err)
	}
}

// latestAnswer 返回本次 Run 产生的最新一条助手消息。
func (s *conversationService) latestAnswer(ctx context.Context, threadID, runID string) (string, error) {
	messages, err := backoff.RetryNotifyWithData(func() ([]assistant.Message, error) {
		msgs, err := s.client.ListMessages(ctx, threadID, runID, s.cfg.MessageLimit)
		return msgs, classify(ctx, err)
	}, s.retryPolicy(ctx), s.notify("获取消息列表"))
	if err != nil {
		return "", newAssistantError(KindResponseMissing, assistant.Reason(err), err)
	}

	for _, m := range messages {
		if m.Role == model.RoleAssistant && m.Text != "" {
			return m.Text, nil
		}
	}
	return "", newAssistantError(KindResponseMissing, "no assistant message after completed run", nil)
}

// retryPolicy 构造用于幂等调用的有界指数退避策略。
func (s *conversationService) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.Retry.InitialInterval > 0 {
		b.InitialInterval = s.cfg.Retry.InitialInterval
	}
	if s.cfg.Retry.MaxInterval > 0 {
		b.MaxInterval = s.cfg.Retry.MaxInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.Retry.MaxRetries), ctx)
}

func (s *conversationService) notify(op string) backoff.Notify {
	return func(err error, next time.Duration) {
		log.Warnf("%s失败，%s 后重试: %v", op, next, err)
	}
}

// classify 将非瞬时错误标记为永久错误，避免重试服务商的明确拒绝。
// ctx 已结束时一律不再重试，单次请求超时则按瞬时错误处理。
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && assistant.IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}
