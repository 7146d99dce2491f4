package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/db"
	"gorm.io/gorm"
)

const saveBatchSize = 200

type pricingRepository struct {
	db *gorm.DB
}

// NewPricingRepository 创建并返回一个新的 pricingRepository 实例。
func NewPricingRepository(gdb *gorm.DB) domain.PricingRepository {
	return &pricingRepository{db: gdb}
}

// --- tx helpers ---

func (r *pricingRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return db.RunInTx(ctx, r.db, fn)
}

func (r *pricingRepository) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, r.db)
}

// --- PricingResult ---

func (r *pricingRepository) Save(ctx context.Context, res *domain.PricingResult) error {
	model := toPricingResultModel(res)
	if model == nil {
		return nil
	}
	if err := r.getDB(ctx).Create(model).Error; err != nil {
		return err
	}
	res.ID = model.ID
	res.CreatedAt = model.CreatedAt
	return nil
}

func (r *pricingRepository) SaveBatch(ctx context.Context, results []*domain.PricingResult) error {
	if len(results) == 0 {
		return nil
	}
	models := make([]*PricingResultModel, 0, len(results))
	for _, res := range results {
		models = append(models, toPricingResultModel(res))
	}
	if err := db.BatchInsert(ctx, r.db, models, saveBatchSize); err != nil {
		return err
	}
	for i, m := range models {
		results[i].ID = m.ID
		results[i].CreatedAt = m.CreatedAt
	}
	return nil
}

func (r *pricingRepository) GetLatest(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	var m PricingResultModel
	if err := r.getDB(ctx).
		Where("symbol = ?", symbol).
		Order("calculated_at desc, id desc").
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPricingResult(&m), nil
}

func (r *pricingRepository) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	var models []PricingResultModel
	if err := r.getDB(ctx).
		Where("symbol = ?", symbol).
		Order("calculated_at desc, id desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]*domain.PricingResult, len(models))
	for i := range models {
		res[i] = toPricingResult(&models[i])
	}
	return res, nil
}

// CleanupOldResults 删除 retention 之前计算的结果，返回删除条数
func CleanupOldResults(ctx context.Context, gdb *gorm.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	tx := db.TxFromContext(ctx, gdb).Where("calculated_at < ?", cutoff).Delete(&PricingResultModel{})
	return tx.RowsAffected, tx.Error
}
