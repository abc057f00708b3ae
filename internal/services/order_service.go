package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/models"
)

// OrderService is the payment core's view of the order subsystem: amount
// lookup, paid marking and reservation release. Everything else about
// orders is owned elsewhere.
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// GetOrderAmount returns the total amount and currency of an order.
func (s *OrderService) GetOrderAmount(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, string, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return decimal.Zero, "", err
	}
	return order.TotalAmount, order.Currency, nil
}

// MarkOrderPaid flips an order to paid and releases its reservation. The
// conditional update makes the first caller win; reconciliation re-runs are
// no-ops and report first=false so notifications fire exactly once.
func (s *OrderService) MarkOrderPaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_paid = ?", orderID, false).
		Updates(map[string]any{
			"is_paid":          true,
			"paid_at":          &now,
			"reservation_held": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseReservation frees held inventory without marking the order paid.
// Safe to call repeatedly.
func (s *OrderService) ReleaseReservation(ctx context.Context, orderID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND reservation_held = ?", orderID, true).
		Update("reservation_held", false).Error
}
