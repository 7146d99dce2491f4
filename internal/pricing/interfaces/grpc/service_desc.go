package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 完整服务名
const ServiceName = "pricing.v1.PricingService"

const (
	PriceOptionMethod     = "/" + ServiceName + "/PriceOption"
	QuoteMethod           = "/" + ServiceName + "/Quote"
	GetGreeksMethod       = "/" + ServiceName + "/GetGreeks"
	GetLatestResultMethod = "/" + ServiceName + "/GetLatestResult"
)

// PricingServiceServer 服务端接口，请求与响应均为 google.protobuf.Struct
type PricingServiceServer interface {
	PriceOption(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Quote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGreeks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLatestResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPricingServiceServer 注册服务
func RegisterPricingServiceServer(s grpc.ServiceRegistrar, srv PricingServiceServer) {
	s.RegisterService(&PricingServiceDesc, srv)
}

func unaryHandler(method string, call func(PricingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PricingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PricingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PricingServiceDesc 手写的服务描述
var PricingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PricingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PriceOption",
			Handler:    unaryHandler(PriceOptionMethod, PricingServiceServer.PriceOption),
		},
		{
			MethodName: "Quote",
			Handler:    unaryHandler(QuoteMethod, PricingServiceServer.Quote),
		},
		{
			MethodName: "GetGreeks",
			Handler:    unaryHandler(GetGreeksMethod, PricingServiceServer.GetGreeks),
		},
		{
			MethodName: "GetLatestResult",
			Handler:    unaryHandler(GetLatestResultMethod, PricingServiceServer.GetLatestResult),
		},
	},
	Metadata: "pricing/v1/pricing.proto",
}

// PricingServiceClient 客户端
type PricingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPricingServiceClient 创建客户端
func NewPricingServiceClient(cc grpc.ClientConnInterface) *PricingServiceClient {
	return &PricingServiceClient{cc: cc}
}

func (c *PricingServiceClient) PriceOption(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PriceOptionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PricingServiceClient) Quote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, QuoteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PricingServiceClient) GetGreeks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetGreeksMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PricingServiceClient) GetLatestResult(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetLatestResultMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
