package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The catalog and stock ledger live outside this service. The core only
// needs two narrow lookups from them.

type StockLevelProvider interface {
	SystemQuantity(ctx context.Context, businessId string, locationId int, productId int) (decimal.Decimal, error)
}

type UnitPriceProvider interface {
	UnitPrice(ctx context.Context, businessId string, productId int) (decimal.Decimal, error)
}

// StockLevel mirrors the stock ledger's per-location on-hand snapshot table.
type StockLevel struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"uniqueIndex:uniq_stock_level,priority:1;size:64;not null" json:"business_id"`
	LocationId int             `gorm:"uniqueIndex:uniq_stock_level,priority:2;not null" json:"location_id"`
	ProductId  int             `gorm:"uniqueIndex:uniq_stock_level,priority:3;not null" json:"product_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Product carries just what variance valuation needs from the catalog.
type Product struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;size:64;not null" json:"business_id"`
	Sku        string          `gorm:"size:100" json:"sku"`
	Name       string          `gorm:"size:255" json:"name"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type dbStockLevelProvider struct{}

type dbUnitPriceProvider struct{}

func NewStockLevelProvider() StockLevelProvider { return dbStockLevelProvider{} }

func NewUnitPriceProvider() UnitPriceProvider { return dbUnitPriceProvider{} }

func (dbStockLevelProvider) SystemQuantity(ctx context.Context, businessId string, locationId int, productId int) (decimal.Decimal, error) {
	var level StockLevel
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND product_id = ?", businessId, locationId, productId).
		Take(&level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Absent snapshot means zero on record; counting it is still valid.
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return level.Qty, nil
}

func (dbUnitPriceProvider) UnitPrice(ctx context.Context, businessId string, productId int) (decimal.Decimal, error) {
	redisKey := fmt.Sprintf("unitPrice:%s:%d", businessId, productId)
	var cached decimal.Decimal
	exists, err := config.GetRedisObject(redisKey, &cached)
	if err == nil && exists {
		return cached, nil
	}

	var product Product
	if err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, productId).
		Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	_ = config.SetRedisObject(redisKey, product.UnitPrice, 10*time.Minute)
	return product.UnitPrice, nil
}

// Business holds per-tenant settings, including optional variance threshold
// overrides (zero means "use environment default").
type Business struct {
	ID                    string          `gorm:"primary_key;size:64" json:"id"`
	Name                  string          `gorm:"size:255" json:"name"`
	VariancePctMedium     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"variance_pct_medium"`
	VariancePctHigh       decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"variance_pct_high"`
	VariancePctCritical   decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"variance_pct_critical"`
	VarianceValueMedium   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_value_medium"`
	VarianceValueHigh     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_value_high"`
	VarianceValueCritical decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_value_critical"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetVarianceThresholds layers the business override on top of env defaults.
func GetVarianceThresholds(ctx context.Context, businessId string) (config.VarianceThresholds, error) {
	base := config.DefaultVarianceThresholds()

	redisKey := "varianceThresholds:" + businessId
	var cached config.VarianceThresholds
	if exists, err := config.GetRedisObject(redisKey, &cached); err == nil && exists {
		return cached, nil
	}

	var business Business
	err := config.GetDB().WithContext(ctx).Where("id = ?", businessId).Take(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return base, nil
		}
		return base, err
	}

	merged := base.Override(config.VarianceThresholds{
		PctMedium:     business.VariancePctMedium,
		PctHigh:       business.VariancePctHigh,
		PctCritical:   business.VariancePctCritical,
		ValueMedium:   business.VarianceValueMedium,
		ValueHigh:     business.VarianceValueHigh,
		ValueCritical: business.VarianceValueCritical,
	})
	_ = config.SetRedisObject(redisKey, merged, 10*time.Minute)
	return merged, nil
}
