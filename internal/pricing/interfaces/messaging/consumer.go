// Package messaging 通过 Kafka 接收定价请求
package messaging

import (
	"context"
	"fmt"

	"github.com/wyfcoding/blackscholes/internal/pricing/application"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/mq"
)

// RequestTypeHeader 请求类型 header，值为 batch 时按批量请求解码
const RequestTypeHeader = "request_type"

const requestTypeBatch = "batch"

// PricingRequestConsumer 定价请求消费者
// 返回错误的消息由 mq.KafkaConsumer 转入死信队列。
type PricingRequestConsumer struct {
	app *application.PricingService
}

// NewPricingRequestConsumer 创建请求消费者
func NewPricingRequestConsumer(app *application.PricingService) *PricingRequestConsumer {
	return &PricingRequestConsumer{app: app}
}

// Run 消费直到 ctx 取消
func (c *PricingRequestConsumer) Run(ctx context.Context, consumer *mq.KafkaConsumer) error {
	return consumer.Run(ctx, c.Handle)
}

// Handle 处理一条请求；结果通过领域事件发出，这里不回写
func (c *PricingRequestConsumer) Handle(ctx context.Context, msg *mq.Message) error {
	if msg.Headers[RequestTypeHeader] == requestTypeBatch {
		var cmd application.BatchPriceOptionsCommand
		if err := msg.UnmarshalPayload(&cmd); err != nil {
			return fmt.Errorf("undecodable batch request: %w", err)
		}
		if cmd.BatchID == "" {
			cmd.BatchID = msg.Key
		}
		res, err := c.app.BatchPriceOptions(ctx, cmd)
		if err != nil {
			return err
		}
		logger.Info(ctx, "batch request consumed", "batch_id", res.BatchID, "success", res.SuccessCount, "failure", res.FailureCount)
		return nil
	}

	var cmd application.PriceOptionCommand
	if err := msg.UnmarshalPayload(&cmd); err != nil {
		return fmt.Errorf("undecodable pricing request: %w", err)
	}
	if cmd.Symbol == "" {
		cmd.Symbol = msg.Key
	}
	res, err := c.app.PriceOption(ctx, cmd)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "pricing request consumed", "symbol", res.Symbol, "price", res.OptionPrice)
	return nil
}
