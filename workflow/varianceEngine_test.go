package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The engine takes entries and a
// price lookup and returns classifications; the tests pin down the dual
// threshold rule and the summary arithmetic.

type fakePrices struct {
	byProduct map[int]decimal.Decimal
}

func (p fakePrices) UnitPrice(_ context.Context, _ string, productId int) (decimal.Decimal, error) {
	if price, ok := p.byProduct[productId]; ok {
		return price, nil
	}
	return decimal.Zero, nil
}

func testThresholds() config.VarianceThresholds {
	return config.VarianceThresholds{
		PctMedium:     decimal.NewFromInt(5),
		PctHigh:       decimal.NewFromInt(10),
		PctCritical:   decimal.NewFromInt(20),
		ValueMedium:   decimal.NewFromInt(100),
		ValueHigh:     decimal.NewFromInt(500),
		ValueCritical: decimal.NewFromInt(1000),
	}
}

func countedEntry(productId int, system, counted int64) models.StockCountEntry {
	sys := decimal.NewFromInt(system)
	cnt := decimal.NewFromInt(counted)
	return models.StockCountEntry{
		ProductId:   productId,
		SystemQty:   sys,
		CountedQty:  &cnt,
		VarianceQty: models.VarianceQuantity(sys, cnt),
		VariancePct: models.VariancePercent(sys, cnt),
	}
}

func TestClassifySeverity_DualThresholds(t *testing.T) {
	th := testThresholds()

	cases := []struct {
		name  string
		pct   int64
		value int64
		want  models.VarianceSeverity
	}{
		{"below both", 4, 99, models.VarianceSeverityLow},
		{"pct medium only", 5, 0, models.VarianceSeverityMedium},
		{"value medium only", 0, 100, models.VarianceSeverityMedium},
		{"pct high beats value medium", 10, 100, models.VarianceSeverityHigh},
		{"value critical beats pct low", 1, 1000, models.VarianceSeverityCritical},
		{"pct critical boundary", 20, 0, models.VarianceSeverityCritical},
		{"both high", 15, 600, models.VarianceSeverityHigh},
	}
	for _, tc := range cases {
		got := ClassifySeverity(decimal.NewFromInt(tc.pct), decimal.NewFromInt(tc.value), th)
		if got != tc.want {
			t.Fatalf("%s: pct=%d value=%d: got %s want %s", tc.name, tc.pct, tc.value, got, tc.want)
		}
	}
}

func TestClassifySeverity_MonotonicInPercent(t *testing.T) {
	th := testThresholds()
	prev := models.VarianceSeverityLow
	for pct := int64(0); pct <= 30; pct++ {
		got := ClassifySeverity(decimal.NewFromInt(pct), decimal.Zero, th)
		if got.Rank() < prev.Rank() {
			t.Fatalf("severity dropped from %s to %s at pct=%d", prev, got, pct)
		}
		prev = got
	}
	if prev != models.VarianceSeverityCritical {
		t.Fatalf("expected Critical at pct=30, got %s", prev)
	}
}

func TestClassifyEntries_SkipsUncountedAndZeroVariance(t *testing.T) {
	prices := fakePrices{byProduct: map[int]decimal.Decimal{1: decimal.NewFromInt(10)}}
	exact := countedEntry(1, 100, 100)
	uncounted := models.StockCountEntry{ProductId: 1, SystemQty: decimal.NewFromInt(50)}
	short := countedEntry(1, 100, 95)

	classified, err := ClassifyEntries(context.Background(), "biz-1",
		[]models.StockCountEntry{exact, uncounted, short}, prices, testThresholds())
	if err != nil {
		t.Fatalf("ClassifyEntries: %v", err)
	}
	if len(classified) != 1 {
		t.Fatalf("expected 1 classified variance, got %d", len(classified))
	}
	if !classified[0].Entry.VarianceQty.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("expected variance -5, got %s", classified[0].Entry.VarianceQty)
	}
}

func TestBuildVarianceSummary_OverageAndShortage(t *testing.T) {
	prices := fakePrices{byProduct: map[int]decimal.Decimal{
		1: decimal.NewFromInt(10),
		2: decimal.NewFromInt(10),
	}}
	// Product 1: counted 95 against 100 on the books, a 5-unit shortage.
	// Product 2: counted 55 against 50, a 5-unit overage.
	entries := []models.StockCountEntry{
		countedEntry(1, 100, 95),
		countedEntry(2, 50, 55),
	}
	classified, err := ClassifyEntries(context.Background(), "biz-1", entries, prices, testThresholds())
	if err != nil {
		t.Fatalf("ClassifyEntries: %v", err)
	}
	summary := BuildVarianceSummary(classified, len(entries))

	if summary.TotalEntries != 2 || summary.VarianceCount != 2 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if !summary.Overage.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("overage: got %s want 50", summary.Overage)
	}
	if !summary.Shortage.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("shortage: got %s want -50", summary.Shortage)
	}
	if !summary.NetImpact.IsZero() {
		t.Fatalf("net impact: got %s want 0", summary.NetImpact)
	}
	// 5% on both scales and a value of 50: medium by percent only.
	if summary.BySeverity[models.VarianceSeverityMedium] != 1 {
		t.Fatalf("expected one Medium variance, got %+v", summary.BySeverity)
	}
	if summary.BySeverity[models.VarianceSeverityHigh] != 1 {
		t.Fatalf("expected one High variance (10%% on product 2), got %+v", summary.BySeverity)
	}
}

func TestClassifyEntries_ValueScaleAloneEscalates(t *testing.T) {
	// 1% quantity variance on an expensive product must still classify by
	// financial impact.
	prices := fakePrices{byProduct: map[int]decimal.Decimal{7: decimal.NewFromInt(2000)}}
	entries := []models.StockCountEntry{countedEntry(7, 100, 99)}

	classified, err := ClassifyEntries(context.Background(), "biz-1", entries, prices, testThresholds())
	if err != nil {
		t.Fatalf("ClassifyEntries: %v", err)
	}
	if len(classified) != 1 {
		t.Fatalf("expected 1 variance, got %d", len(classified))
	}
	if classified[0].Severity != models.VarianceSeverityCritical {
		t.Fatalf("expected Critical (value 2000), got %s", classified[0].Severity)
	}
	if !classified[0].VarianceValue.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("variance value: got %s want 2000", classified[0].VarianceValue)
	}
}
