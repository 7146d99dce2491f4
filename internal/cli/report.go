package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
)

// PrintQuote 输出两种期权价格，withGreeks 时附带希腊字母
func PrintQuote(w io.Writer, q domain.Quote, withGreeks bool) {
	fmt.Fprint(w, "Calculating option prices...\n")
	fmt.Fprintf(w, "European Call Option Price: %.6g\n", q.CallPrice)
	fmt.Fprintf(w, "European Put Option Price: %.6g\n", q.PutPrice)
	if !withGreeks {
		return
	}
	fmt.Fprintf(w, "\n%-6s %12s %12s\n", "Greek", "Call", "Put")
	rows := []struct {
		name      string
		call, put float64
	}{
		{"Delta", q.Call.Delta, q.Put.Delta},
		{"Gamma", q.Call.Gamma, q.Put.Gamma},
		{"Vega", q.Call.Vega, q.Put.Vega},
		{"Theta", q.Call.Theta, q.Put.Theta},
		{"Rho", q.Call.Rho, q.Put.Rho},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-6s %12.6f %12.6f\n", r.name, r.call, r.put)
	}
}

// PrintHeatmap 输出看涨与看跌价格矩阵，行是波动率，列是现价
func PrintHeatmap(w io.Writer, h *domain.Heatmap) {
	printGrid(w, "Call", h.Spots, h.Vols, h.Call)
	fmt.Fprintln(w)
	printGrid(w, "Put", h.Spots, h.Vols, h.Put)
}

func printGrid(w io.Writer, title string, spots, vols []float64, cells [][]float64) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s price (rows: volatility, columns: spot)\n", title)
	fmt.Fprintf(&b, "%8s", "")
	for _, s := range spots {
		fmt.Fprintf(&b, " %8.2f", s)
	}
	b.WriteByte('\n')
	for i, v := range vols {
		fmt.Fprintf(&b, "%8.4f", v)
		for _, c := range cells[i] {
			fmt.Fprintf(&b, " %8.2f", c)
		}
		b.WriteByte('\n')
	}
	fmt.Fprint(w, b.String())
}
