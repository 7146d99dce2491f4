package domain

import "context"

// EventPublisher 事件发布者接口
// 传入 WithTx 的 txCtx 时，支持事务的实现会与业务写入同事务提交。
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}
