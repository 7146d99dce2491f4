// Package mq 提供 Kafka producer/consumer 通用实现，支持熔断、链路透传与死信队列
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
)

var (
	// ErrProducerUnavailable 熔断器打开时返回
	ErrProducerUnavailable = errors.New("kafka producer unavailable: circuit breaker open")
	// ErrHandlerPanic 消息处理函数 panic，消息按处理失败转入死信
	ErrHandlerPanic = errors.New("kafka message handler panicked")
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers         []string
	GroupID         string
	SessionTimeout  int
	MaxRetries      int
	RetryBackoff    int
	BreakerFailures uint32
}

// Sender 发送原始消息
type Sender interface {
	Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) *KafkaProducer {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Snappy,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            maxRetries,
		WriteBackoffMin:        time.Duration(backoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(backoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created", "brokers", cfg.Brokers)
	return newProducer(writer, cfg.BreakerFailures)
}

func newProducer(writer messageWriter, breakerFailures uint32) *KafkaProducer {
	if breakerFailures == 0 {
		breakerFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &KafkaProducer{writer: writer, cb: cb}
}

// Send 发送一条原始消息，并注入追踪上下文到消息头
func (kp *KafkaProducer) Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if len(headers) == 0 {
		for k, v := range tracing.InjectContext(ctx) {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}

	_, err := kp.cb.Execute(func() (any, error) {
		return nil, kp.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = ErrProducerUnavailable
		}
		logger.Error(ctx, "Failed to send Kafka message", "topic", topic, "key", key, "error", err)
		return err
	}

	logger.Debug(ctx, "Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// Message Kafka 消息结构
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// UnmarshalPayload 将消息值解析为 JSON
func (m *Message) UnmarshalPayload(dest any) error {
	return json.Unmarshal(m.Value, dest)
}

func fromKafka(msg kafka.Message) *Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Time:      msg.Time,
	}
}

// Handler 消息处理函数；返回错误时消息被转入死信队列
type Handler func(ctx context.Context, msg *Message) error

// messageReader kafka.Reader 的最小接口
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer Kafka 消费者
type KafkaConsumer struct {
	reader messageReader
	dlq    *DeadLetterQueue
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg KafkaConfig, topic string, dlq *DeadLetterQueue) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6,
	})

	logger.Info(context.Background(), "Kafka consumer created",
		"brokers", cfg.Brokers,
		"topic", topic,
		"group_id", cfg.GroupID,
	)
	return &KafkaConsumer{reader: reader, dlq: dlq}
}

// Run 循环拉取并处理消息，直到 ctx 取消；处理失败的消息写入死信后仍提交位点
func (kc *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		raw, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "Failed to fetch Kafka message", "error", err)
			return err
		}

		msg := fromKafka(raw)
		msgCtx := tracing.ExtractContext(ctx, msg.Headers)

		if err := safeHandle(msgCtx, handler, msg); err != nil {
			logger.Warn(msgCtx, "Kafka message handling failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			if kc.dlq != nil {
				if dlqErr := kc.dlq.Send(msgCtx, msg, err); dlqErr != nil {
					// 死信写入失败时不提交，等待重新投递
					logger.Error(msgCtx, "Failed to write dead letter", "error", dlqErr)
					return dlqErr
				}
			}
		}

		if err := kc.reader.CommitMessages(ctx, raw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "Failed to commit Kafka message", "offset", raw.Offset, "error", err)
			return err
		}
	}
}

// safeHandle 将 handler 的 panic 转为错误，避免单条消息拖垮消费循环
func safeHandle(ctx context.Context, handler Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Kafka message handler panicked",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, msg)
}

// Close 关闭消费者
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}

// DeadLetter 死信消息体
type DeadLetter struct {
	OriginalTopic  string    `json:"original_topic"`
	OriginalKey    string    `json:"original_key"`
	OriginalValue  string    `json:"original_value"`
	OriginalOffset int64     `json:"original_offset"`
	FailureError   string    `json:"failure_error"`
	FailedAt       time.Time `json:"failed_at"`
}

// DeadLetterQueue 死信队列
type DeadLetterQueue struct {
	sender Sender
	topic  string
	onSend func()
}

// NewDeadLetterQueue 创建死信队列；onSend 在每次成功写入后调用，可为 nil
func NewDeadLetterQueue(sender Sender, topic string, onSend func()) *DeadLetterQueue {
	return &DeadLetterQueue{sender: sender, topic: topic, onSend: onSend}
}

// Send 发送消息到死信队列
func (dlq *DeadLetterQueue) Send(ctx context.Context, original *Message, cause error) error {
	body, err := json.Marshal(DeadLetter{
		OriginalTopic:  original.Topic,
		OriginalKey:    original.Key,
		OriginalValue:  string(original.Value),
		OriginalOffset: original.Offset,
		FailureError:   cause.Error(),
		FailedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	if err := dlq.sender.Send(ctx, dlq.topic, original.Key, body, original.Headers); err != nil {
		return err
	}
	if dlq.onSend != nil {
		dlq.onSend()
	}
	return nil
}
