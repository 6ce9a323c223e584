package workflow

import (
	"context"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/shopspring/decimal"
)

// The variance engine is pure: entries plus a unit-price lookup in, classified
// variances and a summary out. Thresholds arrive as an explicit value so
// per-business overrides never touch shared state.

// ClassifiedVariance is one nonzero-variance entry with its valuation and
// severity attached.
type ClassifiedVariance struct {
	Entry         models.StockCountEntry
	UnitPrice     decimal.Decimal
	VarianceValue decimal.Decimal // |variance qty| * unit price
	SignedValue   decimal.Decimal // variance qty * unit price
	Severity      models.VarianceSeverity
}

// VarianceSummary feeds the completion gate and dashboards.
type VarianceSummary struct {
	TotalEntries  int                             `json:"total_entries"`
	VarianceCount int                             `json:"variance_count"`
	BySeverity    map[models.VarianceSeverity]int `json:"by_severity"`
	Overage       decimal.Decimal                 `json:"overage"`
	Shortage      decimal.Decimal                 `json:"shortage"`
	NetImpact     decimal.Decimal                 `json:"net_impact"`
}

func classifyByPercent(pctAbs decimal.Decimal, t config.VarianceThresholds) models.VarianceSeverity {
	switch {
	case pctAbs.GreaterThanOrEqual(t.PctCritical):
		return models.VarianceSeverityCritical
	case pctAbs.GreaterThanOrEqual(t.PctHigh):
		return models.VarianceSeverityHigh
	case pctAbs.GreaterThanOrEqual(t.PctMedium):
		return models.VarianceSeverityMedium
	default:
		return models.VarianceSeverityLow
	}
}

func classifyByValue(valueAbs decimal.Decimal, t config.VarianceThresholds) models.VarianceSeverity {
	switch {
	case valueAbs.GreaterThanOrEqual(t.ValueCritical):
		return models.VarianceSeverityCritical
	case valueAbs.GreaterThanOrEqual(t.ValueHigh):
		return models.VarianceSeverityHigh
	case valueAbs.GreaterThanOrEqual(t.ValueMedium):
		return models.VarianceSeverityMedium
	default:
		return models.VarianceSeverityLow
	}
}

// ClassifySeverity applies the dual thresholds independently and keeps the
// higher classification, so either scale alone can escalate an entry.
func ClassifySeverity(pctAbs, valueAbs decimal.Decimal, t config.VarianceThresholds) models.VarianceSeverity {
	return models.MaxSeverity(classifyByPercent(pctAbs, t), classifyByValue(valueAbs, t))
}

// ClassifyEntries valuates and classifies every recorded entry with a
// nonzero variance.
func ClassifyEntries(ctx context.Context, businessId string, entries []models.StockCountEntry,
	prices models.UnitPriceProvider, t config.VarianceThresholds) ([]ClassifiedVariance, error) {

	out := make([]ClassifiedVariance, 0)
	for _, entry := range entries {
		if entry.CountedQty == nil || entry.VarianceQty.IsZero() {
			continue
		}
		price, err := prices.UnitPrice(ctx, businessId, entry.ProductId)
		if err != nil {
			return nil, err
		}
		signed := entry.VarianceQty.Mul(price)
		out = append(out, ClassifiedVariance{
			Entry:         entry,
			UnitPrice:     price,
			VarianceValue: signed.Abs(),
			SignedValue:   signed,
			Severity:      ClassifySeverity(entry.VariancePct.Abs(), signed.Abs(), t),
		})
	}
	return out, nil
}

// BuildVarianceSummary aggregates per-severity counts and the net financial
// impact. Overage and shortage are tracked separately; net is their sum
// (shortage carries its negative sign).
func BuildVarianceSummary(classified []ClassifiedVariance, totalEntries int) VarianceSummary {
	summary := VarianceSummary{
		TotalEntries:  totalEntries,
		VarianceCount: len(classified),
		BySeverity:    map[models.VarianceSeverity]int{},
		Overage:       decimal.Zero,
		Shortage:      decimal.Zero,
		NetImpact:     decimal.Zero,
	}
	for _, cv := range classified {
		summary.BySeverity[cv.Severity]++
		if cv.SignedValue.IsPositive() {
			summary.Overage = summary.Overage.Add(cv.SignedValue)
		} else {
			summary.Shortage = summary.Shortage.Add(cv.SignedValue)
		}
	}
	summary.NetImpact = summary.Overage.Add(summary.Shortage)
	return summary
}
