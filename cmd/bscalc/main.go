// bscalc 交互式 Black-Scholes 计算器
// 未通过参数给出的 S、K、r、T、σ 会逐项提示输入；-remote 时通过 gRPC 向定价服务请求报价
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wyfcoding/blackscholes/internal/cli"
	"github.com/wyfcoding/blackscholes/internal/pricing/application"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	grpchandler "github.com/wyfcoding/blackscholes/internal/pricing/interfaces/grpc"
	"github.com/wyfcoding/blackscholes/pkg/grpcclient"
	"github.com/wyfcoding/blackscholes/pkg/logger"
)

// fieldFlags 参数名与字段一一对应
var fieldFlags = map[string]domain.Field{
	"S":     domain.FieldStockPrice,
	"K":     domain.FieldStrikePrice,
	"r":     domain.FieldRate,
	"T":     domain.FieldTime,
	"sigma": domain.FieldVolatility,
}

func main() {
	values := make(map[domain.Field]*float64, len(fieldFlags))
	for name, f := range fieldFlags {
		values[f] = flag.Float64(name, 0, fmt.Sprintf("market parameter %s; prompted for when omitted", name))
	}
	greeks := flag.Bool("greeks", false, "print call and put Greeks")
	heatmap := flag.Bool("heatmap", false, "print call and put price heatmaps around the given spot and volatility")
	remote := flag.String("remote", "", "pricing service gRPC address (host:port); computes locally when empty")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout in remote mode")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "warn", Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	var params domain.MarketParameters
	preset := make(map[domain.Field]bool, len(fieldFlags))
	var flagErr error
	flag.Visit(func(fl *flag.Flag) {
		f, ok := fieldFlags[fl.Name]
		if !ok || flagErr != nil {
			return
		}
		v := *values[f]
		if err := domain.ValidateField(f, v); err != nil {
			flagErr = fmt.Errorf("-%s=%s: %w", fl.Name, strconv.FormatFloat(v, 'g', -1, 64), err)
			return
		}
		params.Set(f, v)
		preset[f] = true
	})
	if flagErr != nil {
		fmt.Fprintln(os.Stderr, flagErr)
		os.Exit(2)
	}

	params, err := cli.NewPrompter(os.Stdin, os.Stdout).Complete(params, preset)
	if err != nil {
		if errors.Is(err, cli.ErrInputClosed) {
			fmt.Fprintln(os.Stderr)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var quote domain.Quote
	if *remote != "" {
		quote, err = remoteQuote(*remote, *timeout, params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "remote quote failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		quote = domain.Evaluate(params)
	}

	cli.PrintQuote(os.Stdout, quote, *greeks)
	if *heatmap {
		fmt.Fprintln(os.Stdout)
		cli.PrintHeatmap(os.Stdout, domain.BuildHeatmap(params, domain.DefaultHeatmapSpec(params)))
	}
}

// remoteQuote 调用定价服务的 Quote 方法
func remoteQuote(target string, timeout time.Duration, p domain.MarketParameters) (domain.Quote, error) {
	conn, err := grpcclient.NewClient(grpcclient.ClientConfig{
		Target:         target,
		RequestTimeout: int(timeout / time.Second),
		MaxRetries:     2,
	})
	if err != nil {
		return domain.Quote{}, err
	}
	defer conn.Close()

	in, err := grpchandler.ToStruct(p)
	if err != nil {
		return domain.Quote{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := grpchandler.NewPricingServiceClient(conn).Quote(ctx, in)
	if err != nil {
		return domain.Quote{}, err
	}

	var dto application.QuoteDTO
	if err := grpchandler.FromStruct(out, &dto); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Params:    dto.Params,
		D1:        dto.D1,
		D2:        dto.D2,
		CallPrice: dto.CallPrice,
		PutPrice:  dto.PutPrice,
		Call:      domain.Greeks(dto.CallGreeks),
		Put:       domain.Greeks(dto.PutGreeks),
	}, nil
}
