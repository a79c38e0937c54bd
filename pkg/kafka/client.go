// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/tasks"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单条消息的最大处理次数，用尽后提交 offset 放弃。
const maxAttempts = 3

// retryInterval 是处理失败后首次重试前的等待时间。
const retryInterval = 500 * time.Millisecond

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TurnArchiveTask) error
}

// Producer 将问答归档任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// Send 发送一个归档任务，按会话 ID 分区以保持同一会话内的顺序。
func (p *Producer) Send(ctx context.Context, task tasks.TurnArchiveTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.SessionID),
		Value: taskBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是消费循环依赖的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StartConsumer 启动一个 Kafka 消费者来处理归档任务，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, retryInterval)

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已停止")
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor, interval time.Duration) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}
		if !handleMessage(ctx, r, m, processor, interval) {
			return
		}
	}
}

// handleMessage 处理单条消息。FetchMessage 不会重新投递未提交的消息，
// 因此失败时在原地重试，至多 maxAttempts 次，成功或放弃后才提交 offset。
// 返回 false 表示 ctx 已结束，消息未提交，重启后由消费组重新投递。
func handleMessage(ctx context.Context, r messageReader, m kafka.Message, processor TaskProcessor, interval time.Duration) bool {
	var task tasks.TurnArchiveTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		commit(ctx, r, m)
		return true
	}

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return processor.Process(ctx, task)
	}, retryPolicy(ctx, interval), func(err error, next time.Duration) {
		log.Warnf("归档任务处理失败(第 %d 次)，%s 后重试: key=%s, Error: %v", attempts, next, task.Key(), err)
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		log.Errorf("归档任务多次失败(%d 次)，提交 offset 放弃: key=%s, Error: %v", attempts, task.Key(), err)
	}
	commit(ctx, r, m)
	return true
}

func retryPolicy(ctx context.Context, interval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 10 * interval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
}

func commit(ctx context.Context, r messageReader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
