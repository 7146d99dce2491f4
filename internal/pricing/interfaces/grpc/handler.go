// Package grpc 定价服务的 gRPC 接口
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wyfcoding/blackscholes/internal/pricing/application"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCHandler gRPC 处理器
type GRPCHandler struct {
	app *application.PricingService
}

// NewGRPCHandler 创建 gRPC 处理器实例
func NewGRPCHandler(app *application.PricingService) *GRPCHandler {
	return &GRPCHandler{app: app}
}

var _ PricingServiceServer = (*GRPCHandler)(nil)

// greeksRequest GetGreeks 的请求字段
type greeksRequest struct {
	OptionType string `json:"option_type"`
	domain.MarketParameters
}

// PriceOption 单合约定价，字段同 HTTP 接口
func (h *GRPCHandler) PriceOption(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var cmd application.PriceOptionCommand
	if err := FromStruct(in, &cmd); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := h.app.PriceOption(ctx, cmd)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return ToStruct(result)
}

// Quote 看涨与看跌的完整报价，请求为五个市场参数
func (h *GRPCHandler) Quote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p domain.MarketParameters
	if err := FromStruct(in, &p); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	quote, err := h.app.Quote(ctx, p)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return ToStruct(quote)
}

// GetGreeks 计算指定期权类型的希腊字母
func (h *GRPCHandler) GetGreeks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req greeksRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	greeks, err := h.app.GetGreeks(ctx, req.OptionType, req.MarketParameters)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return ToStruct(greeks)
}

// GetLatestResult 最新定价结果，无记录返回 NotFound
func (h *GRPCHandler) GetLatestResult(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	symbol := in.GetFields()["symbol"].GetStringValue()
	result, err := h.app.GetLatestResult(ctx, symbol)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	if result == nil {
		return nil, status.Errorf(codes.NotFound, "no pricing result for %s", symbol)
	}
	return ToStruct(result)
}

func toStatus(ctx context.Context, err error) error {
	if pe, ok := domain.AsParameterError(err); ok {
		return status.Errorf(codes.InvalidArgument, "%s(%s): %s", pe.Kind, pe.Field, pe.Reason())
	}
	switch {
	case application.IsClientError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, application.ErrPersistenceDisabled):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	logger.Error(ctx, "pricing request failed", "error", err)
	return status.Error(codes.Internal, err.Error())
}

// ToStruct 经 JSON 将任意值转换为 Struct
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// FromStruct 经 JSON 将 Struct 解码到 dest
func FromStruct(s *structpb.Struct, dest any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
