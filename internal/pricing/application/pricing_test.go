package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
)

// memRepo 内存仓储；事务内写入暂存，fn 成功后才可见
type memRepo struct {
	mu      sync.Mutex
	rows    []*domain.PricingResult
	nextID  uint
	saveErr error
}

type memTxKey struct{}

type memTx struct {
	staged []*domain.PricingResult
}

func (r *memRepo) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range tx.staged {
		r.nextID++
		res.ID = r.nextID
		r.rows = append(r.rows, res)
	}
	return nil
}

func (r *memRepo) Save(ctx context.Context, result *domain.PricingResult) error {
	return r.SaveBatch(ctx, []*domain.PricingResult{result})
}

func (r *memRepo) SaveBatch(ctx context.Context, results []*domain.PricingResult) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.staged = append(tx.staged, results...)
		return nil
	}
	return r.WithTx(ctx, func(txCtx context.Context) error { return r.SaveBatch(txCtx, results) })
}

func (r *memRepo) GetLatest(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	h, err := r.GetHistory(ctx, symbol, 1)
	if err != nil || len(h) == 0 {
		return nil, err
	}
	return h[0], nil
}

func (r *memRepo) GetHistory(_ context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PricingResult
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].Symbol == symbol {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

type memCache struct {
	mu    sync.Mutex
	items map[domain.MarketParameters]domain.Quote
}

func newMemCache() *memCache {
	return &memCache{items: make(map[domain.MarketParameters]domain.Quote)}
}

func (c *memCache) Get(_ context.Context, p domain.MarketParameters) (*domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.items[p]; ok {
		return &q, nil
	}
	return nil, nil
}

func (c *memCache) Set(_ context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[q.Params] = q
	return nil
}

type publishedEvent struct {
	eventType string
	key       string
	event     any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{eventType, key, event})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

var fixedNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func newTestService(repo domain.PricingRepository, pub domain.EventPublisher) (*PricingService, *metrics.Metrics) {
	m := metrics.New("pricing-test")
	svc := NewPricingService(repo, newMemCache(), pub, m, Options{
		MaxBatchSize: 10,
		Workers:      4,
		Now:          func() time.Time { return fixedNow },
	})
	return svc, m
}

func atmCommand(symbol, optionType string) PriceOptionCommand {
	return PriceOptionCommand{
		Symbol:          symbol,
		OptionType:      optionType,
		UnderlyingPrice: 100,
		StrikePrice:     100,
		RiskFreeRate:    0.05,
		TimeToExpiry:    1,
		Volatility:      0.2,
	}
}

func TestPriceOption_PersistsAndPublishes(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc, m := newTestService(repo, pub)
	ctx := context.Background()

	res, err := svc.PriceOption(ctx, atmCommand("AAPL", "call"))
	if err != nil {
		t.Fatalf("PriceOption failed: %v", err)
	}
	if math.Abs(res.OptionPrice-10.4506) > 1e-4 {
		t.Errorf("price = %v, want ~10.4506", res.OptionPrice)
	}
	if res.OptionType != domain.OptionTypeCall || res.PricingModel != domain.PricingModelBlackScholes {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ID == 0 {
		t.Error("expected persisted ID")
	}
	if res.CalculatedAt != fixedNow.UnixMilli() {
		t.Errorf("calculated_at = %d", res.CalculatedAt)
	}

	latest, err := svc.GetLatestResult(ctx, "AAPL")
	if err != nil || latest == nil {
		t.Fatalf("GetLatestResult = %v, %v", latest, err)
	}
	if got := latest.OptionPrice.InexactFloat64(); math.Abs(got-res.OptionPrice) > 1e-9 {
		t.Errorf("stored price = %v", got)
	}

	events := pub.ofType(domain.OptionPricedEventType)
	if len(events) != 1 || events[0].key != "AAPL" {
		t.Fatalf("OptionPriced events = %+v", events)
	}
	if ev := events[0].event.(domain.OptionPricedEvent); ev.Greeks.Delta != res.Greeks.Delta {
		t.Errorf("event greeks mismatch")
	}
	if got := testutil.ToFloat64(m.QuotesTotal.WithLabelValues("CALL")); got != 1 {
		t.Errorf("quotes metric = %v", got)
	}
}

func TestPriceOption_UsesCache(t *testing.T) {
	svc, m := newTestService(nil, nil)
	ctx := context.Background()

	first, err := svc.PriceOption(ctx, atmCommand("AAPL", "put"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.PriceOption(ctx, atmCommand("AAPL", "put"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if first.OptionPrice != second.OptionPrice {
		t.Errorf("cached price differs")
	}
	if hits := testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")); hits != 1 {
		t.Errorf("cache hits = %v", hits)
	}
}

func TestPriceOption_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PriceOptionCommand)
		kind   domain.ErrorKind
		target error
	}{
		{"negative spot", func(c *PriceOptionCommand) { c.UnderlyingPrice = -1 }, domain.KindInvalidStockPrice, domain.ErrInvalidStockPrice},
		{"zero strike", func(c *PriceOptionCommand) { c.StrikePrice = 0 }, domain.KindInvalidStrikePrice, domain.ErrInvalidStrikePrice},
		{"negative rate", func(c *PriceOptionCommand) { c.RiskFreeRate = -0.01 }, domain.KindInvalidRate, domain.ErrInvalidRate},
		{"expired", func(c *PriceOptionCommand) {
			c.TimeToExpiry = 0
			c.ExpiryDate = fixedNow.Add(-time.Hour).UnixMilli()
		}, domain.KindInvalidTimeToExpiration, domain.ErrInvalidTimeToExpiration},
		{"nan volatility", func(c *PriceOptionCommand) { c.Volatility = math.NaN() }, domain.KindInvalidVolatility, domain.ErrInvalidVolatility},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{}
			pub := &recordingPublisher{}
			svc, m := newTestService(repo, pub)

			cmd := atmCommand("MSFT", "call")
			tt.mutate(&cmd)
			_, err := svc.PriceOption(context.Background(), cmd)

			pe, ok := domain.AsParameterError(err)
			if !ok || pe.Kind != tt.kind || !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
			if !IsClientError(err) {
				t.Error("parameter errors are client errors")
			}
			if len(repo.rows) != 0 {
				t.Error("rejected request must not be persisted")
			}
			rejected := pub.ofType(domain.PricingRejectedEventType)
			if len(rejected) != 1 || rejected[0].event.(domain.PricingRejectedEvent).Kind != tt.kind {
				t.Errorf("rejection events = %+v", rejected)
			}
			if got := testutil.ToFloat64(m.ValidationFailures.WithLabelValues(string(tt.kind))); got != 1 {
				t.Errorf("validation metric = %v", got)
			}
		})
	}
}

func TestPriceOption_CommandErrors(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	ctx := context.Background()

	cmd := atmCommand("", "call")
	if _, err := svc.PriceOption(ctx, cmd); !errors.Is(err, ErrSymbolRequired) {
		t.Errorf("expected ErrSymbolRequired, got %v", err)
	}

	cmd = atmCommand("AAPL", "call")
	cmd.PricingModel = "LongstaffSchwartz"
	if _, err := svc.PriceOption(ctx, cmd); !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("expected ErrUnsupportedModel, got %v", err)
	}

	cmd = atmCommand("AAPL", "straddle")
	if _, err := svc.PriceOption(ctx, cmd); !errors.Is(err, domain.ErrInvalidOptionType) || !IsClientError(err) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestPriceOption_ExpiryDate(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	cmd := atmCommand("AAPL", "call")
	cmd.TimeToExpiry = 0
	cmd.ExpiryDate = fixedNow.Add(365 * 24 * time.Hour).UnixMilli()

	res, err := svc.PriceOption(context.Background(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Params.T-1) > 1e-12 {
		t.Errorf("T = %v, want 1", res.Params.T)
	}
}

func TestPriceOption_PublishFailureRollsBack(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{err: errors.New("outbox unavailable")}
	svc, _ := newTestService(repo, pub)

	if _, err := svc.PriceOption(context.Background(), atmCommand("AAPL", "call")); err == nil {
		t.Fatal("expected error when publishing inside the transaction fails")
	}
	if len(repo.rows) != 0 {
		t.Errorf("rows = %d, want 0 after rollback", len(repo.rows))
	}
}

func TestPriceOption_NoRepoIgnoresPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestService(nil, pub)
	if _, err := svc.PriceOption(context.Background(), atmCommand("AAPL", "call")); err != nil {
		t.Fatalf("expected success without repository, got %v", err)
	}
}

func TestBatchPriceOptions(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc, _ := newTestService(repo, pub)

	contracts := []PriceOptionCommand{
		atmCommand("AAPL", "call"),
		atmCommand("AAPL", "put"),
		func() PriceOptionCommand { c := atmCommand("TSLA", "call"); c.Volatility = 0; return c }(),
		atmCommand("", "call"),
		atmCommand("MSFT", "call"),
	}
	res, err := svc.BatchPriceOptions(context.Background(), BatchPriceOptionsCommand{BatchID: "batch-1", Contracts: contracts})
	if err != nil {
		t.Fatalf("BatchPriceOptions failed: %v", err)
	}

	if res.BatchID != "batch-1" || res.SuccessCount != 3 || res.FailureCount != 2 {
		t.Fatalf("unexpected summary %+v", res)
	}
	for i, item := range res.Items {
		if item.Index != i || item.Symbol != contracts[i].Symbol {
			t.Errorf("item %d out of order: %+v", i, item)
		}
	}
	if res.Items[1].Result == nil || res.Items[1].Result.OptionType != domain.OptionTypePut {
		t.Errorf("item 1 = %+v", res.Items[1])
	}
	if math.Abs(res.Items[1].Result.OptionPrice-5.5735) > 1e-4 {
		t.Errorf("put price = %v", res.Items[1].Result.OptionPrice)
	}
	if res.Items[2].Kind != domain.KindInvalidVolatility || res.Items[2].Field != domain.FieldVolatility {
		t.Errorf("item 2 = %+v", res.Items[2])
	}
	if res.Items[3].Error == "" || res.Items[3].Result != nil {
		t.Errorf("item 3 = %+v", res.Items[3])
	}
	if len(repo.rows) != 3 {
		t.Errorf("persisted rows = %d, want 3", len(repo.rows))
	}
	for _, idx := range []int{0, 1, 4} {
		if res.Items[idx].Result.ID == 0 {
			t.Errorf("item %d missing ID", idx)
		}
	}

	completed := pub.ofType(domain.BatchPricingCompletedEventType)
	if len(completed) != 1 {
		t.Fatalf("batch events = %d", len(completed))
	}
	ev := completed[0].event.(domain.BatchPricingCompletedEvent)
	sort.Strings(ev.Symbols)
	if ev.TotalContracts != 5 || ev.SuccessCount != 3 || fmt.Sprint(ev.Symbols) != "[AAPL MSFT]" {
		t.Errorf("batch event = %+v", ev)
	}
	if n := len(pub.ofType(domain.OptionPricedEventType)); n != 3 {
		t.Errorf("OptionPriced events = %d, want 3", n)
	}
}

func TestBatchPriceOptions_Limits(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	ctx := context.Background()

	if _, err := svc.BatchPriceOptions(ctx, BatchPriceOptionsCommand{}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}

	big := make([]PriceOptionCommand, 11)
	for i := range big {
		big[i] = atmCommand("AAPL", "call")
	}
	if _, err := svc.BatchPriceOptions(ctx, BatchPriceOptionsCommand{Contracts: big}); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}

	res, err := svc.BatchPriceOptions(ctx, BatchPriceOptionsCommand{Contracts: big[:2]})
	if err != nil {
		t.Fatal(err)
	}
	if res.BatchID == "" {
		t.Error("expected generated batch id")
	}
}

func TestBatchPriceOptions_Cancelled(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.BatchPriceOptions(ctx, BatchPriceOptionsCommand{Contracts: []PriceOptionCommand{atmCommand("AAPL", "call")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildHeatmap(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	base := domain.MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}

	res, err := svc.BuildHeatmap(context.Background(), HeatmapCommand{Params: base})
	if err != nil {
		t.Fatal(err)
	}
	want := domain.BuildHeatmap(base, domain.DefaultHeatmapSpec(base))
	if len(res.Call) != len(want.Call) {
		t.Fatalf("rows = %d, want %d", len(res.Call), len(want.Call))
	}
	for i := range want.Call {
		for j := range want.Call[i] {
			if math.Abs(res.Call[i][j]-want.Call[i][j]) > 1e-12 || math.Abs(res.Put[i][j]-want.Put[i][j]) > 1e-12 {
				t.Fatalf("cell (%d,%d) differs from sequential build", i, j)
			}
		}
	}

	bad := domain.HeatmapSpec{SpotMin: 10, SpotMax: 5, VolMin: 0.1, VolMax: 0.2, SpotSteps: 2, VolSteps: 2}
	if _, err := svc.BuildHeatmap(context.Background(), HeatmapCommand{Params: base, Spec: &bad}); !errors.Is(err, domain.ErrInvalidHeatmap) {
		t.Errorf("expected ErrInvalidHeatmap, got %v", err)
	}

	invalid := base
	invalid.T = -1
	if _, err := svc.BuildHeatmap(context.Background(), HeatmapCommand{Params: invalid}); !errors.Is(err, domain.ErrInvalidTimeToExpiration) {
		t.Errorf("expected ErrInvalidTimeToExpiration, got %v", err)
	}
}

func TestQueryService(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	ctx := context.Background()
	p := domain.MarketParameters{S: 100, K: 100, R: 0.05, T: 1, Sigma: 0.2}

	q, err := svc.Quote(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	// 看涨看跌平价
	parity := q.CallPrice - q.PutPrice - (p.S - p.K*math.Exp(-p.R*p.T))
	if math.Abs(parity) > 1e-9 {
		t.Errorf("parity residual = %v", parity)
	}

	g, err := svc.GetGreeks(ctx, "put", p)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Delta-(-0.363169)) > 1e-4 {
		t.Errorf("put delta = %v", g.Delta)
	}

	if _, err := svc.GetGreeks(ctx, "call", domain.MarketParameters{S: 100, K: 100, R: 0.05, T: 1}); !errors.Is(err, domain.ErrInvalidVolatility) {
		t.Errorf("expected ErrInvalidVolatility, got %v", err)
	}

	if _, err := svc.GetLatestResult(ctx, "AAPL"); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("expected ErrPersistenceDisabled, got %v", err)
	}
	if _, err := svc.GetHistory(ctx, " ", 10); !errors.Is(err, ErrSymbolRequired) {
		t.Errorf("expected ErrSymbolRequired, got %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	for _, s := range []float64{90, 100, 110} {
		cmd := atmCommand("AAPL", "call")
		cmd.UnderlyingPrice = s
		if _, err := svc.PriceOption(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := svc.GetHistory(ctx, "AAPL", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].UnderlyingPrice.InexactFloat64() != 110 {
		t.Errorf("history = %+v", hist)
	}

	none, err := svc.GetLatestResult(ctx, "GOOG")
	if err != nil || none != nil {
		t.Errorf("GetLatestResult(GOOG) = %v, %v", none, err)
	}
}

// underflowParams 通过校验，但 σ·√T 下溢为 0 且 S=K，d1 = 0/0
var underflowParams = domain.MarketParameters{S: 100, K: 100, R: 0, T: 1e-300, Sigma: 1e-300}

func TestPriceOption_NonFiniteResult(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc, m := newTestService(repo, pub)
	ctx := context.Background()

	if err := domain.Validate(underflowParams); err != nil {
		t.Fatalf("parameters should pass validation: %v", err)
	}

	cmd := PriceOptionCommand{
		Symbol:          "X",
		OptionType:      "CALL",
		UnderlyingPrice: underflowParams.S,
		StrikePrice:     underflowParams.K,
		RiskFreeRate:    underflowParams.R,
		TimeToExpiry:    underflowParams.T,
		Volatility:      underflowParams.Sigma,
	}
	_, err := svc.PriceOption(ctx, cmd)
	if !errors.Is(err, domain.ErrNonFiniteResult) {
		t.Fatalf("err = %v, want ErrNonFiniteResult", err)
	}
	if !IsClientError(err) {
		t.Error("non-finite results are client errors")
	}
	if len(repo.rows) != 0 || len(pub.ofType(domain.OptionPricedEventType)) != 0 {
		t.Error("non-finite result must not be persisted or published")
	}
	if got := testutil.ToFloat64(m.ValidationFailures.WithLabelValues(nonFiniteKind)); got != 1 {
		t.Errorf("validation metric = %v", got)
	}

	if _, err := svc.Quote(ctx, underflowParams); !errors.Is(err, domain.ErrNonFiniteResult) {
		t.Errorf("Quote err = %v", err)
	}
	if _, err := svc.GetGreeks(ctx, "put", underflowParams); !errors.Is(err, domain.ErrNonFiniteResult) {
		t.Errorf("GetGreeks err = %v", err)
	}

	batch, err := svc.BatchPriceOptions(ctx, BatchPriceOptionsCommand{
		BatchID:   "b-nan",
		Contracts: []PriceOptionCommand{cmd, atmCommand("AAPL", "call")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.FailureCount != 1 || batch.SuccessCount != 1 || batch.Items[0].Error == "" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestBuildHeatmap_NonFiniteCell(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	base := domain.MarketParameters{S: 100, K: 100, R: 0, T: 1e-300, Sigma: 0.2}
	spec := domain.HeatmapSpec{SpotMin: 90, SpotMax: 110, VolMin: 1e-300, VolMax: 1e-300, SpotSteps: 3, VolSteps: 1}

	_, err := svc.BuildHeatmap(context.Background(), HeatmapCommand{Params: base, Spec: &spec})
	if !errors.Is(err, domain.ErrNonFiniteResult) {
		t.Fatalf("err = %v, want ErrNonFiniteResult", err)
	}
	if !IsClientError(err) {
		t.Error("non-finite heatmap is a client error")
	}
}
