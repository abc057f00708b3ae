package services

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/models"
)

// Reconciler applies order-side effects once a ledger entry reaches a
// terminal state: mark the order paid on success, release held inventory on
// failure or expiry, and notify operators. It keeps no bookkeeping of its
// own; idempotence comes from the ledger's terminal-state guarantee and the
// order row's conditional updates.
type Reconciler struct {
	db       *gorm.DB
	orders   *OrderService
	telegram *TelegramService
}

func NewReconciler(db *gorm.DB, orders *OrderService, telegram *TelegramService) *Reconciler {
	return &Reconciler{db: db, orders: orders, telegram: telegram}
}

// Reconcile runs side effects for an attempt. Safe to invoke more than
// once; non-terminal attempts are a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, attempt *models.PaymentAttempt) {
	switch attempt.Status {
	case models.StatusSucceeded:
		r.onSucceeded(ctx, attempt)
	case models.StatusFailed, models.StatusExpired:
		r.onNotCompleted(ctx, attempt)
	}
}

func (r *Reconciler) onSucceeded(ctx context.Context, attempt *models.PaymentAttempt) {
	first := true
	orderNumber := ""

	if attempt.OrderID != nil {
		var err error
		first, err = r.orders.MarkOrderPaid(ctx, *attempt.OrderID)
		if err != nil {
			log.Printf("[Reconcile] mark order %s paid failed for attempt %s: %v", attempt.OrderID, attempt.ID, err)
			return
		}
		orderNumber = r.orderNumber(ctx, attempt)
	}

	if !first {
		return
	}

	n := r.notification(attempt)
	n.OrderNumber = orderNumber
	go func() {
		if err := r.telegram.NotifyPaymentSuccess(n); err != nil {
			log.Printf("[Reconcile] success notification failed for attempt %s: %v", attempt.ID, err)
		}
	}()
}

func (r *Reconciler) onNotCompleted(ctx context.Context, attempt *models.PaymentAttempt) {
	orderNumber := ""
	if attempt.OrderID != nil {
		if err := r.orders.ReleaseReservation(ctx, *attempt.OrderID); err != nil {
			log.Printf("[Reconcile] release reservation for order %s failed: %v", attempt.OrderID, err)
		}
		orderNumber = r.orderNumber(ctx, attempt)
	}

	n := r.notification(attempt)
	n.OrderNumber = orderNumber
	n.Reason = attempt.ResultDesc
	go func() {
		if err := r.telegram.NotifyPaymentFailure(n); err != nil {
			log.Printf("[Reconcile] failure notification failed for attempt %s: %v", attempt.ID, err)
		}
	}()
}

func (r *Reconciler) notification(attempt *models.PaymentAttempt) PaymentNotification {
	counterparty := attempt.Phone
	if counterparty == "" {
		counterparty = attempt.WalletAddress
	}
	return PaymentNotification{
		AttemptID:    attempt.ID.String(),
		Provider:     string(attempt.Provider),
		Direction:    string(attempt.Direction),
		Amount:       attempt.Amount.StringFixed(2),
		Currency:     attempt.Currency,
		Counterparty: counterparty,
		Receipt:      attempt.ReceiptNumber,
	}
}

func (r *Reconciler) orderNumber(ctx context.Context, attempt *models.PaymentAttempt) string {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", *attempt.OrderID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Reconcile] order lookup for attempt %s failed: %v", attempt.ID, err)
		}
		return ""
	}
	return order.OrderNumber
}
