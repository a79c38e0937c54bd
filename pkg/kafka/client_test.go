package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"slr-assistant-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueReader 依次返回预置的消息，取完后阻塞直到 ctx 结束。
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *queueReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

// flakyProcessor 对每个会话先失败 failures[session] 次再成功。
type flakyProcessor struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	stored   []string
	onCall   func()
}

func (p *flakyProcessor) Process(_ context.Context, task tasks.TurnArchiveTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onCall != nil {
		p.onCall()
	}
	p.calls[task.SessionID]++
	if p.calls[task.SessionID] <= p.failures[task.SessionID] {
		return errors.New("database unavailable")
	}
	p.stored = append(p.stored, task.SessionID)
	return nil
}

func newFlakyProcessor(failures map[string]int) *flakyProcessor {
	return &flakyProcessor{failures: failures, calls: map[string]int{}}
}

func turnMessage(t *testing.T, offset int64, sessionID string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(tasks.TurnArchiveTask{SessionID: sessionID, Question: "q", Answer: "a", AskedAt: time.Now()})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(sessionID), Value: value}
}

func TestHandleMessageRetriesBeforeCommit(t *testing.T) {
	r := &queueReader{}
	p := newFlakyProcessor(map[string]int{"s1": 2})

	ok := handleMessage(context.Background(), r, turnMessage(t, 7, "s1"), p, time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 3, p.calls["s1"])
	assert.Equal(t, []string{"s1"}, p.stored)
	assert.Equal(t, []int64{7}, r.offsets())
}

func TestHandleMessageGivesUpAfterMaxAttempts(t *testing.T) {
	r := &queueReader{}
	p := newFlakyProcessor(map[string]int{"s1": 100})

	ok := handleMessage(context.Background(), r, turnMessage(t, 3, "s1"), p, time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, maxAttempts, p.calls["s1"])
	assert.Empty(t, p.stored)
	assert.Equal(t, []int64{3}, r.offsets(), "poison message is committed after the last attempt")
}

func TestHandleMessageCommitsMalformed(t *testing.T) {
	r := &queueReader{}
	p := newFlakyProcessor(nil)

	ok := handleMessage(context.Background(), r, kafka.Message{Offset: 1, Value: []byte("not json")}, p, time.Millisecond)
	assert.True(t, ok)
	assert.Empty(t, p.calls)
	assert.Equal(t, []int64{1}, r.offsets())
}

func TestHandleMessageLeavesUncommittedOnShutdown(t *testing.T) {
	r := &queueReader{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newFlakyProcessor(map[string]int{"s1": 100})
	p.onCall = cancel

	ok := handleMessage(ctx, r, turnMessage(t, 5, "s1"), p, time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 1, p.calls["s1"])
	assert.Empty(t, r.offsets())
}

func TestConsumeDoesNotSkipFailedMessage(t *testing.T) {
	r := &queueReader{queue: []kafka.Message{turnMessage(t, 1, "s1"), turnMessage(t, 2, "s2")}}
	p := newFlakyProcessor(map[string]int{"s1": 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consume(ctx, r, p, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(r.offsets()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2}, r.offsets())
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"s1", "s2"}, p.stored)
}

func TestBrokerList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokerList(" a:9092, ,b:9092 "))
	assert.Nil(t, brokerList(""))
}
