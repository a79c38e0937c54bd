package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 按路径返回固定 JSON，并记录收到的请求。
type fakeProvider struct {
	t        *testing.T
	mu       sync.Mutex
	requests []*http.Request
	bodies   map[string]string
}

func (p *fakeProvider) body(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[key]
}

func (p *fakeProvider) lastRequest() *http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func newFakeProvider(t *testing.T) (*fakeProvider, Client) {
	fp := &fakeProvider{t: t, bodies: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)
	return fp, NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
}

func (p *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.requests = append(p.requests, r)
	p.bodies[r.Method+" "+r.URL.Path] = string(body)
	p.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
		_, _ = io.WriteString(w, `{"id":"file-1","object":"file","filename":"coastal_program.pdf","purpose":"assistants"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/vector_stores":
		_, _ = io.WriteString(w, `{"id":"vs_1","object":"vector_store","name":"Sea Level Rise Documents"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/vector_stores/vs_1/files":
		_, _ = io.WriteString(w, `{"id":"file-1","object":"vector_store.file","vector_store_id":"vs_1"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/assistants":
		_, _ = io.WriteString(w, `{"id":"asst_1","object":"assistant","model":"gpt-3.5-turbo"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads":
		_, _ = io.WriteString(w, `{"id":"thread_1","object":"thread"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/messages":
		_, _ = io.WriteString(w, `{"id":"msg_user","object":"thread.message","role":"user"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/runs":
		_, _ = io.WriteString(w, `{"id":"run_1","thread_id":"thread_1","status":"queued","created_at":100}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/thread_1/runs/run_1":
		_, _ = io.WriteString(w, `{"id":"run_1","thread_id":"thread_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"slow down"}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/thread_1/messages":
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"msg_2","role":"assistant","run_id":"run_1","created_at":200,"content":[
				{"type":"text","text":{"value":"Seawalls are discouraged.","annotations":[]}},
				{"type":"text","text":{"value":"See policy 4.2.","annotations":[]}}]},
			{"id":"msg_1","role":"user","created_at":100,"content":[{"type":"text","text":{"value":"seawalls?","annotations":[]}}]}
		]}`)
	case r.URL.Path == "/v1/threads/broken/messages":
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"No thread found with id 'broken'.","type":"invalid_request_error"}}`)
	case r.URL.Path == "/v1/threads/overloaded/runs":
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	case r.URL.Path == "/v1/threads/quota/runs":
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"unexpected path","type":"invalid_request_error"}}`)
	}
}

func TestClientSetupCalls(t *testing.T) {
	fp, c := newFakeProvider(t)
	ctx := context.Background()

	fileID, err := c.UploadFile(ctx, "coastal_program.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "file-1", fileID)
	assert.Contains(t, fp.body("POST /v1/files"), "assistants")

	vsID, err := c.CreateVectorStore(ctx, "Sea Level Rise Documents")
	require.NoError(t, err)
	assert.Equal(t, "vs_1", vsID)

	require.NoError(t, c.AttachFile(ctx, vsID, fileID))
	assert.JSONEq(t, `{"file_id":"file-1"}`, fp.body("POST /v1/vector_stores/vs_1/files"))

	asstID, err := c.CreateAssistant(ctx, AssistantRequest{
		Name:          "Sea Level Rise Arcata Assistant",
		Instructions:  "Answer only from the attached Arcata sea level rise documents",
		Model:         "gpt-3.5-turbo",
		VectorStoreID: vsID,
	})
	require.NoError(t, err)
	assert.Equal(t, "asst_1", asstID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fp.body("POST /v1/assistants")), &sent))
	assert.Equal(t, "gpt-3.5-turbo", sent["model"])
	assert.Equal(t, []any{map[string]any{"type": "file_search"}}, sent["tools"])
	assert.Equal(t, map[string]any{"file_search": map[string]any{"vector_store_ids": []any{"vs_1"}}}, sent["tool_resources"])
}

func TestClientConversationCalls(t *testing.T) {
	fp, c := newFakeProvider(t)
	ctx := context.Background()

	threadID, err := c.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", threadID)

	_, err = c.CreateMessage(ctx, threadID, "What does the Local Coastal Program say about seawalls?")
	require.NoError(t, err)
	assert.Contains(t, fp.body("POST /v1/threads/thread_1/messages"), `"role":"user"`)

	run, err := c.CreateRun(ctx, threadID, "asst_1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.EqualValues(t, 100, run.CreatedAt)

	run, err = c.RetrieveRun(ctx, threadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "rate_limit_exceeded", run.FailureCode)
	assert.Equal(t, "slow down", run.FailureMessage)

	msgs, err := c.ListMessages(ctx, threadID, "run_1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, "Seawalls are discouraged.\nSee policy 4.2.", msgs[0].Text)
	assert.Equal(t, "run_1", msgs[0].RunID)

	last := fp.lastRequest()
	assert.Equal(t, "desc", last.URL.Query().Get("order"))
	assert.Equal(t, "run_1", last.URL.Query().Get("run_id"))
	assert.Equal(t, "10", last.URL.Query().Get("limit"))
	assert.Equal(t, "Bearer sk-test", last.Header.Get("Authorization"))
}

func TestClientErrorsClassification(t *testing.T) {
	_, c := newFakeProvider(t)
	ctx := context.Background()

	_, err := c.CreateMessage(ctx, "broken", "hi")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.True(t, strings.Contains(Reason(err), "No thread found"))

	_, err = c.CreateRun(ctx, "overloaded", "asst_1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	_, err = c.CreateRun(ctx, "quota", "asst_1")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusCancelling} {
		assert.False(t, s.Terminal(), s)
	}
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestIsTransientNetworkAndContext(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"})
	_, err := c.CreateThread(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CreateThread(ctx)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, IsTransient(nil))
}

func TestIsTransientRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", RequestTimeout: 50 * time.Millisecond})
	_, err := c.CreateThread(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err), "a slow response is retried: %v", err)
}
