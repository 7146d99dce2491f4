package domain

import "context"

// PricingRepository 定价历史仓储接口
type PricingRepository interface {
	// WithTx 在事务中执行 fn，txCtx 携带事务句柄，同一事务内的写入需使用 txCtx
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
	Save(ctx context.Context, result *PricingResult) error
	SaveBatch(ctx context.Context, results []*PricingResult) error
	// GetLatest 无记录时返回 nil, nil
	GetLatest(ctx context.Context, symbol string) (*PricingResult, error)
	// GetHistory 按计算时间倒序
	GetHistory(ctx context.Context, symbol string, limit int) ([]*PricingResult, error)
}
