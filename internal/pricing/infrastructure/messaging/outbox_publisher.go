package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/db"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
	"gorm.io/gorm"
)

// EventTypeHeader 事件类型所在的 Kafka header
const EventTypeHeader = "event_type"

const defaultMaxRetries = 5

// MessageStatus 消息状态
type MessageStatus int8

const (
	StatusPending MessageStatus = iota // 待发送
	StatusSent                         // 已发送
	StatusFailed                       // 超过最大重试次数
)

// OutboxMessage 离群消息，与定价结果同库同事务写入
type OutboxMessage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
	Topic      string        `gorm:"column:topic;type:varchar(255);not null;index"`
	MessageKey string        `gorm:"column:message_key;type:varchar(255);index"`
	EventType  string        `gorm:"column:event_type;type:varchar(100);index"`
	Payload    []byte        `gorm:"column:payload;not null"`
	Metadata   string        `gorm:"column:metadata;type:text"` // 追踪上下文 (JSON)
	Status     MessageStatus `gorm:"column:status;default:0;index"`
	RetryCount int           `gorm:"column:retry_count;default:0"`
	MaxRetries int           `gorm:"column:max_retries;default:5"`
	NextRetry  time.Time     `gorm:"column:next_retry;index"`
	LastError  string        `gorm:"column:last_error;type:text"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

// AutoMigrate 创建或更新 outbox 表
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&OutboxMessage{})
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
// ctx 中带有事务时与业务写入一起提交。
type OutboxEventPublisher struct {
	db         *gorm.DB
	topic      string
	maxRetries int
	now        func() time.Time
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(gdb *gorm.DB, topic string) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: gdb, topic: topic, maxRetries: defaultMaxRetries, now: time.Now}
}

var _ domain.EventPublisher = (*OutboxEventPublisher)(nil)

// Publish 写入一条待发送消息
func (p *OutboxEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	metadata, _ := json.Marshal(tracing.InjectContext(ctx))

	msg := &OutboxMessage{
		Topic:      p.topic,
		MessageKey: key,
		EventType:  eventType,
		Payload:    payload,
		Metadata:   string(metadata),
		Status:     StatusPending,
		MaxRetries: p.maxRetries,
		NextRetry:  p.now(),
	}
	return db.TxFromContext(ctx, p.db).Create(msg).Error
}
