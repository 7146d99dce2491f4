// Package cli 交互式命令行：逐项读取市场参数并输出报价
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
)

// ErrInputClosed 输入在参数读全之前结束
var ErrInputClosed = errors.New("input closed before all parameters were entered")

var prompts = map[domain.Field]string{
	domain.FieldStockPrice:  "Please enter the current stock price (S): ",
	domain.FieldStrikePrice: "Please enter the strike price (K): ",
	domain.FieldRate:        "Please enter the risk-free interest rate (r) (as a decimal, e.g., 0.05 for 5%): ",
	domain.FieldTime:        "Please enter the time to expiration in years (T): ",
	domain.FieldVolatility:  "Please enter the volatility (sigma) (as a decimal, e.g., 0.2 for 20%): ",
}

var retryPrompts = map[domain.Field]string{
	domain.FieldStockPrice:  "Invalid input. Stock price must be a positive number: ",
	domain.FieldStrikePrice: "Invalid input. Strike price must be a positive number: ",
	domain.FieldRate:        "Invalid input. Interest rate cannot be a negative number: ",
	domain.FieldTime:        "Invalid input. Time to expiration must be a positive number: ",
	domain.FieldVolatility:  "Invalid input. Volatility must be a positive number: ",
}

// Prompter 从输入流按空白分隔读取数值，非法输入丢弃当前行并重新询问
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	pending []string
}

// NewPrompter 创建 Prompter
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// ReadParameters 依次询问 S、K、r、T、σ
func (p *Prompter) ReadParameters() (domain.MarketParameters, error) {
	return p.Complete(domain.MarketParameters{}, nil)
}

// Complete 只询问 preset 中未给出的字段
func (p *Prompter) Complete(params domain.MarketParameters, preset map[domain.Field]bool) (domain.MarketParameters, error) {
	for _, f := range domain.Fields {
		if preset[f] {
			continue
		}
		v, err := p.readField(f)
		if err != nil {
			return params, fmt.Errorf("reading %s: %w", f, err)
		}
		params.Set(f, v)
	}
	return params, nil
}

func (p *Prompter) readField(f domain.Field) (float64, error) {
	fmt.Fprint(p.out, prompts[f])
	for {
		tok, err := p.nextToken()
		if err != nil {
			return 0, err
		}
		v, perr := strconv.ParseFloat(tok, 64)
		if perr == nil && domain.ValidateField(f, v) == nil {
			return v, nil
		}
		p.pending = nil
		fmt.Fprint(p.out, retryPrompts[f])
	}
}

// nextToken 空行不计为输入
func (p *Prompter) nextToken() (string, error) {
	for len(p.pending) == 0 {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return "", err
			}
			return "", ErrInputClosed
		}
		p.pending = strings.Fields(p.scanner.Text())
	}
	tok := p.pending[0]
	p.pending = p.pending[1:]
	return tok, nil
}
