package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/cache"
	"github.com/seludoto/dolesecommerce/internal/models"
)

const (
	// PairPiUSD is the only pair the crypto flow quotes today.
	pairBasePi   = "PI"
	pairQuoteUSD = "USD"

	latestRateCacheKey = "rates:latest:PI-USD"
	latestRateCacheTTL = 30 * time.Second

	piAmountPrecision = 8
)

// RatesService manages the versioned exchange-rate record set. Rates are
// append-only; the record with the latest EffectiveAt is authoritative.
// Writes come from an external actor (admin or poller), never the payment
// flow itself.
type RatesService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewRatesService(db *gorm.DB, c *cache.Cache) *RatesService {
	return &RatesService{db: db, cache: c}
}

// Latest returns the authoritative PI/USD rate, or ErrStaleRate when no
// record exists. There is no compiled-in fallback: pricing real money off a
// stale default is exactly the failure mode this service refuses.
func (s *RatesService) Latest(ctx context.Context) (*models.ExchangeRate, error) {
	var cached models.ExchangeRate
	if err := s.cache.Get(ctx, latestRateCacheKey, &cached); err == nil && !cached.Rate.IsZero() {
		return &cached, nil
	}

	var rate models.ExchangeRate
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ?", pairBasePi, pairQuoteUSD).
		Order("effective_at desc").
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStaleRate
		}
		return nil, err
	}

	_ = s.cache.Set(ctx, latestRateCacheKey, rate, latestRateCacheTTL)
	return &rate, nil
}

// Put appends a new rate record, superseding earlier ones by timestamp.
func (s *RatesService) Put(ctx context.Context, rate decimal.Decimal, source string) (*models.ExchangeRate, error) {
	if !rate.IsPositive() {
		return nil, &ValidationError{Reason: "rate must be greater than zero"}
	}

	record := models.ExchangeRate{
		Base:        pairBasePi,
		Quote:       pairQuoteUSD,
		Rate:        rate,
		Source:      source,
		EffectiveAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, latestRateCacheKey, record, latestRateCacheTTL)
	return &record, nil
}

// List returns rate history, newest first.
func (s *RatesService) List(ctx context.Context, limit, offset int) ([]models.ExchangeRate, int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.ExchangeRate{}).
		Where("base = ? AND quote = ?", pairBasePi, pairQuoteUSD)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rates []models.ExchangeRate
	if err := query.
		Order("effective_at desc").
		Limit(limit).
		Offset(offset).
		Find(&rates).Error; err != nil {
		return nil, 0, err
	}

	return rates, total, nil
}

// Quote converts a fiat amount to Pi using the latest rate. The returned
// rate record is what the caller must hold onto for the life of the
// payment; it is never re-read mid-transaction.
func (s *RatesService) Quote(ctx context.Context, fiat decimal.Decimal) (decimal.Decimal, *models.ExchangeRate, error) {
	if !fiat.IsPositive() {
		return decimal.Zero, nil, &ValidationError{Reason: "amount must be greater than zero"}
	}

	rate, err := s.Latest(ctx)
	if err != nil {
		return decimal.Zero, nil, err
	}

	return ConvertFiatToPi(fiat, rate.Rate), rate, nil
}

// ConvertFiatToPi divides a fiat amount by the USD-per-Pi rate.
func ConvertFiatToPi(fiat, usdPerPi decimal.Decimal) decimal.Decimal {
	return fiat.DivRound(usdPerPi, piAmountPrecision)
}
