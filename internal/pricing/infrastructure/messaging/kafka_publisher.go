package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/mq"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
	"github.com/wyfcoding/blackscholes/pkg/utils"
)

const (
	sendAttempts     = 3
	sendInitialDelay = 50 * time.Millisecond
	sendMaxDelay     = 500 * time.Millisecond
)

// KafkaEventPublisher 直接发送到 Kafka，不经过 outbox，用于未配置数据库的部署
type KafkaEventPublisher struct {
	sender mq.Sender
	topic  string
}

// NewKafkaEventPublisher 创建直发事件发布器
func NewKafkaEventPublisher(sender mq.Sender, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender, topic: topic}
}

var _ domain.EventPublisher = (*KafkaEventPublisher)(nil)

// Publish 序列化事件并发送，附带 trace 与事件类型头
func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	headers := tracing.InjectContext(ctx)
	headers[EventTypeHeader] = eventType
	// 没有 outbox 兜底，瞬时失败在这里重试；熔断打开时直接返回
	var sendErr error
	err = utils.RetryWithBackoff(ctx, sendAttempts, sendInitialDelay, sendMaxDelay, func() error {
		sendErr = p.sender.Send(ctx, p.topic, key, payload, headers)
		if errors.Is(sendErr, mq.ErrProducerUnavailable) {
			return nil
		}
		return sendErr
	})
	if err != nil {
		return err
	}
	return sendErr
}
