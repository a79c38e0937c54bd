package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/assistant"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeClient 是按脚本返回结果的服务商客户端。
type fakeClient struct {
	mu sync.Mutex

	uploadErr      error
	vectorStoreErr error
	attachErr      error
	assistantErr   error
	threadErrs     []error
	messageErr     error
	runErr         error
	retrieveErrs   []error
	listErr        error
	statuses       []assistant.RunStatus
	failureCode    string
	answer         string
	uploads        []string
	vectorStores   []string
	attached       map[string][]string
	assistantReqs  []assistant.AssistantRequest
	threadAttempts int
	threads        []string
	messages       []string
	runs           int
	retrieveCalls  int
	cancelled      []string
	listCalls      int
	onRetrieve     func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses: []assistant.RunStatus{assistant.RunStatusCompleted},
		answer:   "The Local Coastal Program discourages new seawalls.",
		attached: map[string][]string{},
	}
}

func (f *fakeClient) UploadFile(_ context.Context, name string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, name)
	return fmt.Sprintf("file_%d", len(f.uploads)), nil
}

func (f *fakeClient) CreateVectorStore(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectorStoreErr != nil {
		return "", f.vectorStoreErr
	}
	id := fmt.Sprintf("idx_%d", len(f.vectorStores)+1)
	f.vectorStores = append(f.vectorStores, id)
	return id, nil
}

func (f *fakeClient) AttachFile(_ context.Context, vectorStoreID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[vectorStoreID] = append(f.attached[vectorStoreID], fileID)
	return nil
}

func (f *fakeClient) CreateAssistant(_ context.Context, req assistant.AssistantRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assistantErr != nil {
		return "", f.assistantErr
	}
	f.assistantReqs = append(f.assistantReqs, req)
	return fmt.Sprintf("asst_%d", len(f.assistantReqs)), nil
}

func (f *fakeClient) CreateThread(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadAttempts++
	if len(f.threadErrs) > 0 {
		err := f.threadErrs[0]
		f.threadErrs = f.threadErrs[1:]
		return "", err
	}
	id := fmt.Sprintf("thread_%d", len(f.threads)+1)
	f.threads = append(f.threads, id)
	return id, nil
}

func (f *fakeClient) CreateMessage(_ context.Context, _ string, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageErr != nil {
		return "", f.messageErr
	}
	f.messages = append(f.messages, content)
	return fmt.Sprintf("msg_%d", len(f.messages)), nil
}

func (f *fakeClient) CreateRun(_ context.Context, threadID, _ string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return assistant.Run{}, f.runErr
	}
	f.runs++
	f.retrieveCalls = 0
	return assistant.Run{ID: fmt.Sprintf("run_%d", f.runs), ThreadID: threadID, Status: assistant.RunStatusQueued, CreatedAt: 1000}, nil
}

func (f *fakeClient) RetrieveRun(_ context.Context, threadID, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onRetrieve != nil {
		f.onRetrieve()
	}
	if len(f.retrieveErrs) > 0 {
		err := f.retrieveErrs[0]
		f.retrieveErrs = f.retrieveErrs[1:]
		return assistant.Run{}, err
	}
	idx := f.retrieveCalls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.retrieveCalls++
	run := assistant.Run{ID: runID, ThreadID: threadID, Status: f.statuses[idx], CreatedAt: 1000}
	switch run.Status {
	case assistant.RunStatusCompleted:
		completed := int64(1003)
		run.CompletedAt = &completed
	case assistant.RunStatusFailed:
		run.FailureCode = f.failureCode
	}
	return run, nil
}

func (f *fakeClient) CancelRun(_ context.Context, threadID, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return assistant.Run{ID: runID, ThreadID: threadID, Status: assistant.RunStatusCancelling}, nil
}

func (f *fakeClient) ListMessages(_ context.Context, _ string, runID string, _ int) ([]assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var msgs []assistant.Message
	if f.answer != "" {
		msgs = append(msgs, assistant.Message{ID: "msg_answer", Role: "assistant", Text: f.answer, RunID: runID})
	}
	msgs = append(msgs, assistant.Message{ID: "msg_question", Role: "user", Text: "question"})
	return msgs, nil
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		PollInterval: time.Millisecond,
		RunTimeout:   time.Second,
		MessageLimit: 20,
		SessionTTL:   time.Hour,
		Retry: config.RetryConfig{
			MaxRetries:      3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
}

func newTestSessions(t *testing.T) repository.SessionRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewSessionRepository(client, time.Hour)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))
	return db
}
