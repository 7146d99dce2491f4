package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/mq"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
	"gorm.io/gorm"
)

const (
	sendTimeout     = 10 * time.Second
	maxRetryBackoff = 24 * time.Hour
	cleanupEvery    = time.Hour
)

// RelayOptions 投递参数
type RelayOptions struct {
	BatchSize    int
	PollInterval time.Duration
	// Retention 已发送消息的保留时长，0 表示不清理
	Retention time.Duration
	// RetryBase 首次重试的等待时间，之后按 2 的幂增长
	RetryBase time.Duration
}

// OutboxRelay 扫描 outbox 表并投递到 Kafka
type OutboxRelay struct {
	db      *gorm.DB
	sender  mq.Sender
	metrics *metrics.Metrics
	opts    RelayOptions
	now     func() time.Time
}

// NewOutboxRelay 创建投递器
func NewOutboxRelay(gdb *gorm.DB, sender mq.Sender, m *metrics.Metrics, opts RelayOptions) *OutboxRelay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Minute
	}
	return &OutboxRelay{db: gdb, sender: sender, metrics: m, opts: opts, now: time.Now}
}

// Run 周期性投递，直到 ctx 取消
func (r *OutboxRelay) Run(ctx context.Context) error {
	logger.Info(ctx, "outbox relay started", "interval", r.opts.PollInterval, "batch_size", r.opts.BatchSize)
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	lastCleanup := r.now()

	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessOutboxMessages(ctx); err != nil {
				logger.Error(ctx, "outbox relay iteration failed", "error", err)
			}
			if r.opts.Retention > 0 && r.now().Sub(lastCleanup) >= cleanupEvery {
				lastCleanup = r.now()
				if n, err := r.CleanupProcessedMessages(ctx, lastCleanup.Add(-r.opts.Retention)); err != nil {
					logger.Error(ctx, "outbox cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info(ctx, "outbox cleanup finished", "deleted", n)
				}
			}
		}
	}
}

// ProcessOutboxMessages 投递一批到期的待发送消息，返回成功条数
func (r *OutboxRelay) ProcessOutboxMessages(ctx context.Context) (int, error) {
	var messages []OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry <= ?", StatusPending, r.now()).
		Order("id ASC").
		Limit(r.opts.BatchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range messages {
		if ctx.Err() != nil {
			break
		}
		if r.send(ctx, &messages[i]) {
			sent++
		}
	}
	r.reportPending(ctx)
	return sent, nil
}

// send 单条投递并更新状态，恢复写入时的追踪上下文
func (r *OutboxRelay) send(ctx context.Context, msg *OutboxMessage) bool {
	headers := map[string]string{}
	if msg.Metadata != "" {
		_ = json.Unmarshal([]byte(msg.Metadata), &headers)
	}
	sendCtx := tracing.ExtractContext(ctx, headers)
	sendCtx, span := tracing.StartSpan(sendCtx, "OutboxRelay.Send")
	defer span.End()
	sendCtx, cancel := context.WithTimeout(sendCtx, sendTimeout)
	defer cancel()

	headers[EventTypeHeader] = msg.EventType
	err := r.sender.Send(sendCtx, msg.Topic, msg.MessageKey, msg.Payload, headers)
	r.metrics.RecordEvent(msg.EventType, err)

	if err == nil {
		if uerr := r.db.WithContext(ctx).Model(msg).Updates(map[string]any{
			"status":      StatusSent,
			"retry_count": msg.RetryCount + 1,
		}).Error; uerr != nil {
			logger.Error(ctx, "failed to mark outbox message sent", "id", msg.ID, "error", uerr)
		}
		return true
	}

	tracing.SetError(sendCtx, err)
	backoff := min(r.opts.RetryBase<<uint(msg.RetryCount), maxRetryBackoff)
	updates := map[string]any{
		"retry_count": msg.RetryCount + 1,
		"next_retry":  r.now().Add(backoff),
		"last_error":  err.Error(),
	}
	if msg.RetryCount+1 >= msg.MaxRetries {
		updates["status"] = StatusFailed
		logger.Error(ctx, "outbox message failed permanently", "id", msg.ID, "event_type", msg.EventType, "error", err)
	} else {
		logger.Warn(ctx, "outbox message send failed, retrying later", "id", msg.ID, "error", err, "next_retry", updates["next_retry"])
	}
	if uerr := r.db.WithContext(ctx).Model(msg).Updates(updates).Error; uerr != nil {
		logger.Error(ctx, "failed to record outbox failure", "id", msg.ID, "error", uerr)
	}
	return false
}

func (r *OutboxRelay) reportPending(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&OutboxMessage{}).Where("status = ?", StatusPending).Count(&n).Error; err == nil {
		r.metrics.SetOutboxPending(int(n))
	}
}

// CleanupProcessedMessages 清理 before 之前已发送的消息
func (r *OutboxRelay) CleanupProcessedMessages(ctx context.Context, before time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Where("status = ? AND updated_at < ?", StatusSent, before).Delete(&OutboxMessage{})
	return tx.RowsAffected, tx.Error
}
