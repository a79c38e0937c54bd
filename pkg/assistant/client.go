// Package assistant provides a client for the hosted assistant provider
// (files, vector stores, assistants, threads, messages and runs).
package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"slr-assistant-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// RunStatus 是服务商返回的 Run 状态。
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether polling can stop. requires_action counts as terminal:
// assistants created here carry no function tools, so such a run never progresses.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return false
	}
	return true
}

// Run 表示一次助手对线程的调用。
type Run struct {
	ID             string
	ThreadID       string
	Status         RunStatus
	FailureCode    string
	FailureMessage string
	CreatedAt      int64
	CompletedAt    *int64
}

// Message 表示线程中的一条消息，Text 为所有文本片段的拼接。
type Message struct {
	ID        string
	Role      string
	Text      string
	RunID     string
	CreatedAt int64
}

// AssistantRequest 描述要创建的助手。
type AssistantRequest struct {
	Name          string
	Instructions  string
	Model         string
	VectorStoreID string
}

// Client 定义了编排层与服务商之间的全部契约。
type Client interface {
	UploadFile(ctx context.Context, name string, content []byte) (string, error)
	CreateVectorStore(ctx context.Context, name string) (string, error)
	AttachFile(ctx context.Context, vectorStoreID, fileID string) error
	CreateAssistant(ctx context.Context, req AssistantRequest) (string, error)
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, content string) (string, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (Run, error)
	// ListMessages 按时间倒序返回线程消息；runID 非空时只返回该 Run 产生的消息。
	ListMessages(ctx context.Context, threadID, runID string, limit int) ([]Message, error)
}

// Config 是 openai 客户端的连接参数。
type Config struct {
	APIKey         string
	BaseURL        string
	OrgID          string
	RequestTimeout time.Duration
}

type openAIClient struct {
	client *openai.Client
}

// NewClient 基于 go-openai 创建服务商客户端。
func NewClient(cfg Config) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.OrgID = cfg.OrgID
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIClient{client: openai.NewClientWithConfig(oc)}
}

func (c *openAIClient) UploadFile(ctx context.Context, name string, content []byte) (string, error) {
	f, err := c.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   content,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file %s: %w", name, err)
	}
	log.Infof("[AssistantClient] 文件已上传: %s -> %s", name, f.ID)
	return f.ID, nil
}

func (c *openAIClient) CreateVectorStore(ctx context.Context, name string) (string, error) {
	vs, err := c.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to create vector store %s: %w", name, err)
	}
	log.Infof("[AssistantClient] 向量库 '%s' 已创建, ID: %s", name, vs.ID)
	return vs.ID, nil
}

func (c *openAIClient) AttachFile(ctx context.Context, vectorStoreID, fileID string) error {
	_, err := c.client.CreateVectorStoreFile(ctx, vectorStoreID, openai.VectorStoreFileRequest{FileID: fileID})
	if err != nil {
		return fmt.Errorf("failed to attach file %s to vector store %s: %w", fileID, vectorStoreID, err)
	}
	return nil
}

func (c *openAIClient) CreateAssistant(ctx context.Context, req AssistantRequest) (string, error) {
	name := req.Name
	instructions := req.Instructions
	a, err := c.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        req.Model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: []string{req.VectorStoreID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create assistant %s: %w", req.Name, err)
	}
	log.Infof("[AssistantClient] 助手 '%s' 已创建, ID: %s", req.Name, a.ID)
	return a.ID, nil
}

func (c *openAIClient) CreateThread(ctx context.Context) (string, error) {
	th, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return th.ID, nil
}

func (c *openAIClient) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	msg, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message in thread %s: %w", threadID, err)
	}
	return msg.ID, nil
}

func (c *openAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Run{}, fmt.Errorf("failed to create run in thread %s: %w", threadID, err)
	}
	return toRun(run), nil
}

func (c *openAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to retrieve run %s: %w", runID, err)
	}
	return toRun(run), nil
}

func (c *openAIClient) CancelRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.CancelRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}
	return toRun(run), nil
}

func (c *openAIClient) ListMessages(ctx context.Context, threadID, runID string, limit int) ([]Message, error) {
	order := "desc"
	var limitPtr *int
	var runIDPtr *string
	if limit > 0 {
		limitPtr = &limit
	}
	if runID != "" {
		runIDPtr = &runID
	}
	list, err := c.client.ListMessage(ctx, threadID, limitPtr, &order, nil, nil, runIDPtr)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages in thread %s: %w", threadID, err)
	}
	messages := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		messages = append(messages, toMessage(m))
	}
	return messages, nil
}

func toRun(r openai.Run) Run {
	run := Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		Status:      RunStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.LastError != nil {
		run.FailureCode = string(r.LastError.Code)
		run.FailureMessage = r.LastError.Message
	}
	return run
}

func toMessage(m openai.Message) Message {
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Text != nil && c.Text.Value != "" {
			parts = append(parts, c.Text.Value)
		}
	}
	msg := Message{
		ID:        m.ID,
		Role:      m.Role,
		Text:      strings.Join(parts, "\n"),
		CreatedAt: int64(m.CreatedAt),
	}
	if m.RunID != nil {
		msg.RunID = *m.RunID
	}
	return msg
}
