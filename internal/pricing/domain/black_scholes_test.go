package domain

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// 参考值由 Mathematica 计算
func TestNormCDF_KnownValues(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{-3, 0.00134989803163},
		{-1, 0.158655253931},
		{0, 0.5},
		{0.5, 0.691462461274},
		{2.1, 0.982135579437},
	}
	for _, c := range cases {
		if got := NormCDF(c.x); !almostEqual(got, c.want, 1.5e-7) {
			t.Errorf("NormCDF(%v) = %.12f, want %.12f", c.x, got, c.want)
		}
	}
}

// A&S 7.1.26 在 x=0 处 a1..a5 之和为 0.999999999，对称误差上限约 1e-9
func TestNormCDF_Symmetry(t *testing.T) {
	if v := NormCDF(0); !almostEqual(v, 0.5, 1.5e-7) {
		t.Errorf("NormCDF(0) = %.12f", v)
	}
	for x := -8.0; x <= 8.0; x += 0.125 {
		if sum := NormCDF(x) + NormCDF(-x); !almostEqual(sum, 1, 2e-9) {
			t.Errorf("NormCDF(%v)+NormCDF(%v) = %.15f", x, -x, sum)
		}
	}
}

func TestNormCDF_RangeAndMonotonic(t *testing.T) {
	prev := -1.0
	for x := -40.0; x <= 40.0; x += 0.01 {
		v := NormCDF(x)
		if v < 0 || v > 1 {
			t.Fatalf("NormCDF(%v) = %v outside [0,1]", x, v)
		}
		if v < prev {
			t.Fatalf("NormCDF not monotonic at %v: %v < %v", x, v, prev)
		}
		prev = v
	}
}

func TestNormPDF(t *testing.T) {
	if got, want := NormPDF(0), 1/math.Sqrt(2*math.Pi); got != want {
		t.Errorf("NormPDF(0) = %v, want %v", got, want)
	}
	if !almostEqual(NormPDF(1), 0.24197072451914337, 1e-15) {
		t.Errorf("NormPDF(1) = %v", NormPDF(1))
	}
	if NormPDF(2.5) != NormPDF(-2.5) {
		t.Errorf("NormPDF not symmetric")
	}
	if NormPDF(10) <= 0 {
		t.Errorf("NormPDF(10) must be positive")
	}
}

func TestComputeD1D2_ReferenceCase(t *testing.T) {
	p := MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}
	d := ComputeD1D2(p)
	if !almostEqual(d.D1, 0.35, 1e-12) {
		t.Errorf("d1 = %v, want 0.35", d.D1)
	}
	if !almostEqual(d.D2, 0.15, 1e-12) {
		t.Errorf("d2 = %v, want 0.15", d.D2)
	}
}

func TestComputeD1D2_DegenerateInputIsNotFinite(t *testing.T) {
	bad := []MarketParameters{
		{S: 0, K: 100, R: 0.05, T: 1, Sigma: 0.2},
		{S: 100, K: 100, R: 0.05, T: 0, Sigma: 0.2},
		{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0},
		{S: -1, K: 100, R: 0.05, T: 1, Sigma: 0.2},
	}
	for _, p := range bad {
		d := ComputeD1D2(p)
		if isFinite(d.D1) && isFinite(d.D2) {
			t.Errorf("ComputeD1D2(%+v) = %+v, expected a non-finite value", p, d)
		}
	}
}

func TestPrices_ReferenceCase(t *testing.T) {
	p := MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}
	if call := CallPrice(p); !almostEqual(call, 10.4506, 1e-4) {
		t.Errorf("call price = %v, want ≈10.4506", call)
	}
	if put := PutPrice(p); !almostEqual(put, 5.5735, 1e-4) {
		t.Errorf("put price = %v, want ≈5.5735", put)
	}
	if Price(OptionTypeCall, p) != CallPrice(p) || Price(OptionTypePut, p) != PutPrice(p) {
		t.Errorf("Price dispatch mismatch")
	}
}

// randomParams 生成数值上不至于下溢的合法参数
func randomParams(r *rand.Rand) MarketParameters {
	s := 1 + r.Float64()*499
	return MarketParameters{
		S:     s,
		K:     s * (0.5 + r.Float64()*1.5),
		R:     r.Float64() * 0.2,
		T:     0.1 + r.Float64()*4.9,
		Sigma: 0.1 + r.Float64()*0.9,
	}
}

func TestPutCallParity(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		p := randomParams(r)
		lhs := CallPrice(p) - PutPrice(p)
		rhs := p.S - p.K*math.Exp(-p.R*p.T)
		tol := 1e-9 * math.Max(1, math.Max(p.S, p.K))
		if !almostEqual(lhs, rhs, tol) {
			t.Fatalf("parity violated for %+v: C-P=%v, S-Ke^-rT=%v", p, lhs, rhs)
		}
	}
}

func TestPrices_NonNegative(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 2000; i++ {
		p := randomParams(r)
		// 深度虚值时近似误差可让价格略低于 0
		if c := CallPrice(p); c < -1e-6*p.S {
			t.Fatalf("negative call price %v for %+v", c, p)
		}
		if put := PutPrice(p); put < -1e-6*p.S {
			t.Fatalf("negative put price %v for %+v", put, p)
		}
	}
}

func TestCallPrice_IncreasesWithExpiry(t *testing.T) {
	p := MarketParameters{S: 100, K: 100, R: 0.05, Sigma: 0.2}
	prev := 0.0
	for T := 0.25; T <= 30; T += 0.25 {
		p.T = T
		c := CallPrice(p)
		if c <= prev {
			t.Fatalf("call price not increasing at T=%v: %v <= %v", T, c, prev)
		}
		if c >= p.S {
			t.Fatalf("call price %v exceeds spot at T=%v", c, T)
		}
		prev = c
	}

	p.T = 200
	if c := CallPrice(p); p.S-c > 0.01 {
		t.Errorf("call price at T=200 is %v, expected to converge to S=%v", c, p.S)
	}
}

func TestGreeks_ReferenceCase(t *testing.T) {
	p := MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"delta call", DeltaCall(p), 0.636831},
		{"delta put", DeltaPut(p), -0.363169},
		{"gamma", Gamma(p), 0.018762},
		{"vega", Vega(p), 37.524035},
		{"theta call", ThetaCall(p), -6.414028},
		{"theta put", ThetaPut(p), -1.657880},
		{"rho call", RhoCall(p), 53.232482},
		{"rho put", RhoPut(p), -41.890461},
	}
	for _, c := range cases {
		if !almostEqual(c.got, c.want, 1e-4) {
			t.Errorf("%s = %.6f, want %.6f", c.name, c.got, c.want)
		}
	}
}

func TestGreeks_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1))
	for i := 0; i < 2000; i++ {
		p := randomParams(r)

		dc, dp := DeltaCall(p), DeltaPut(p)
		if dc < 0 || dc > 1 {
			t.Fatalf("call delta %v outside [0,1] for %+v", dc, p)
		}
		if dp < -1 || dp > 0 {
			t.Fatalf("put delta %v outside [-1,0] for %+v", dp, p)
		}

		if g := Gamma(p); g <= 0 {
			t.Fatalf("gamma %v not positive for %+v", g, p)
		}
		if v := Vega(p); v <= 0 {
			t.Fatalf("vega %v not positive for %+v", v, p)
		}
		if GammaCall(p) != GammaPut(p) || VegaCall(p) != VegaPut(p) {
			t.Fatalf("gamma/vega differ between variants for %+v", p)
		}

		if rc := RhoCall(p); rc < 0 {
			t.Fatalf("call rho %v negative for %+v", rc, p)
		}
		if rp := RhoPut(p); rp > 0 {
			t.Fatalf("put rho %v positive for %+v", rp, p)
		}
	}
}

func TestGreeksFor(t *testing.T) {
	p := MarketParameters{S: 120, K: 100, R: 0.03, T: 0.5, Sigma: 0.35}
	call := GreeksFor(OptionTypeCall, p)
	want := Greeks{Delta: DeltaCall(p), Gamma: Gamma(p), Vega: Vega(p), Theta: ThetaCall(p), Rho: RhoCall(p)}
	if call != want {
		t.Errorf("call greeks = %+v, want %+v", call, want)
	}
	put := GreeksFor(OptionTypePut, p)
	want = Greeks{Delta: DeltaPut(p), Gamma: Gamma(p), Vega: Vega(p), Theta: ThetaPut(p), Rho: RhoPut(p)}
	if put != want {
		t.Errorf("put greeks = %+v, want %+v", put, want)
	}
}

func greeksClose(a, b Greeks) bool {
	return almostEqual(a.Delta, b.Delta, 1e-12) && almostEqual(a.Gamma, b.Gamma, 1e-12) &&
		almostEqual(a.Vega, b.Vega, 1e-9) && almostEqual(a.Theta, b.Theta, 1e-9) && almostEqual(a.Rho, b.Rho, 1e-9)
}

func TestEvaluate_MatchesIndividualFunctions(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 200; i++ {
		p := randomParams(r)
		q := Evaluate(p)
		if !almostEqual(q.CallPrice, CallPrice(p), 1e-9) || !almostEqual(q.PutPrice, PutPrice(p), 1e-9) {
			t.Fatalf("prices differ for %+v", p)
		}
		if !greeksClose(q.Call, CallGreeks(p)) || !greeksClose(q.Put, PutGreeks(p)) {
			t.Fatalf("greeks differ for %+v", p)
		}
		d := ComputeD1D2(p)
		if !almostEqual(q.D1, d.D1, 1e-12) || !almostEqual(q.D2, d.D2, 1e-12) {
			t.Fatalf("d1/d2 differ for %+v", p)
		}
		if q.PriceFor(OptionTypePut) != q.PutPrice || q.GreeksFor(OptionTypeCall) != q.Call {
			t.Fatalf("accessor mismatch")
		}
	}
}

func TestValidate_RejectsEachField(t *testing.T) {
	valid := MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}
	cases := []struct {
		name     string
		mutate   func(*MarketParameters)
		kind     ErrorKind
		field    Field
		sentinel error
	}{
		{"zero stock", func(p *MarketParameters) { p.S = 0 }, KindInvalidStockPrice, FieldStockPrice, ErrInvalidStockPrice},
		{"negative strike", func(p *MarketParameters) { p.K = -5 }, KindInvalidStrikePrice, FieldStrikePrice, ErrInvalidStrikePrice},
		{"negative rate", func(p *MarketParameters) { p.R = -0.01 }, KindInvalidRate, FieldRate, ErrInvalidRate},
		{"zero expiry", func(p *MarketParameters) { p.T = 0 }, KindInvalidTimeToExpiration, FieldTime, ErrInvalidTimeToExpiration},
		{"zero volatility", func(p *MarketParameters) { p.Sigma = 0 }, KindInvalidVolatility, FieldVolatility, ErrInvalidVolatility},
		{"nan stock", func(p *MarketParameters) { p.S = math.NaN() }, KindInvalidStockPrice, FieldStockPrice, ErrInvalidStockPrice},
		{"infinite volatility", func(p *MarketParameters) { p.Sigma = math.Inf(1) }, KindInvalidVolatility, FieldVolatility, ErrInvalidVolatility},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := valid
			c.mutate(&p)
			err := Validate(p)
			if err == nil {
				t.Fatalf("expected error for %+v", p)
			}
			pe, ok := AsParameterError(err)
			if !ok {
				t.Fatalf("expected *ParameterError, got %T", err)
			}
			if pe.Kind != c.kind || pe.Field != c.field {
				t.Errorf("got kind=%s field=%s, want kind=%s field=%s", pe.Kind, pe.Field, c.kind, c.field)
			}
			if !errors.Is(err, c.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, c.sentinel)
			}
			if pe.HTTPStatus() != 400 {
				t.Errorf("HTTPStatus = %d", pe.HTTPStatus())
			}
		})
	}
}

func TestValidate_ReportsFirstFailure(t *testing.T) {
	err := Validate(MarketParameters{S: 100, K: 0, R: -1, T: 0, Sigma: 0})
	pe, ok := AsParameterError(err)
	if !ok || pe.Kind != KindInvalidStrikePrice {
		t.Fatalf("expected InvalidStrikePrice first, got %v", err)
	}
}

func TestValidate_AcceptsZeroRate(t *testing.T) {
	if err := Validate(MarketParameters{S: 1, K: 1, R: 0, T: 1e-6, Sigma: 1e-6}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateField_Unknown(t *testing.T) {
	if err := ValidateField("q", 1); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestMarketParameters_GetSet(t *testing.T) {
	var p MarketParameters
	for i, f := range Fields {
		p.Set(f, float64(i+1))
	}
	want := MarketParameters{S: 1, K: 2, R: 3, T: 4, Sigma: 5}
	if p != want {
		t.Fatalf("Set produced %+v, want %+v", p, want)
	}
	for i, f := range Fields {
		if p.Get(f) != float64(i+1) {
			t.Errorf("Get(%s) = %v", f, p.Get(f))
		}
	}
}

func TestParseOptionType(t *testing.T) {
	for in, want := range map[string]OptionType{"call": OptionTypeCall, " PUT ": OptionTypePut, "c": OptionTypeCall, "P": OptionTypePut} {
		got, err := ParseOptionType(in)
		if err != nil || got != want {
			t.Errorf("ParseOptionType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOptionType("straddle"); !errors.Is(err, ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestMarketParameters_Describe(t *testing.T) {
	p := MarketParameters{S: 100, K: math.NaN(), R: 0.05, T: math.Inf(1), Sigma: 0.2}
	d := p.Describe()
	want := map[Field]string{
		FieldStockPrice:  "100",
		FieldStrikePrice: "NaN",
		FieldRate:        "0.05",
		FieldTime:        "+Inf",
		FieldVolatility:  "0.2",
	}
	for f, v := range want {
		if d[f] != v {
			t.Errorf("Describe()[%s] = %q, want %q", f, d[f], v)
		}
	}
}

func TestQuote_CheckFinite(t *testing.T) {
	if err := Evaluate(MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}).CheckFinite(); err != nil {
		t.Errorf("reference quote reported %v", err)
	}

	// σ·√T 下溢为 0，S=K 时 d1 = 0/0
	p := MarketParameters{S: 100, K: 100, R: 0, T: 1e-300, Sigma: 1e-300}
	if err := Validate(p); err != nil {
		t.Fatalf("Validate = %v", err)
	}
	if err := Evaluate(p).CheckFinite(); !errors.Is(err, ErrNonFiniteResult) {
		t.Errorf("CheckFinite = %v, want ErrNonFiniteResult", err)
	}
}
