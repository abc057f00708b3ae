package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/services"
	"github.com/seludoto/dolesecommerce/internal/utils"
)

// PaymentHandler manages payment initiation and attempt history endpoints.
type PaymentHandler struct {
	mpesa     *services.MpesaService
	registry  services.Registry
	ledger    *services.LedgerService
	orders    *services.OrderService
	callbacks *services.CallbackService
}

func NewPaymentHandler(mpesa *services.MpesaService, registry services.Registry, ledger *services.LedgerService, orders *services.OrderService, callbacks *services.CallbackService) *PaymentHandler {
	return &PaymentHandler{
		mpesa:     mpesa,
		registry:  registry,
		ledger:    ledger,
		orders:    orders,
		callbacks: callbacks,
	}
}

type stkPushRequest struct {
	OrderID     string          `json:"order_id"`
	Phone       string          `json:"phone"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
}

type payoutRequest struct {
	OrderID  string          `json:"order_id"`
	Phone    string          `json:"phone"`
	Amount   decimal.Decimal `json:"amount"`
	Remarks  string          `json:"remarks"`
	Occasion string          `json:"occasion"`
}

// StkPush initiates an M-Pesa STK push charge. When an order is referenced
// and no amount is given, the order's total is charged.
func (h *PaymentHandler) StkPush(c *fiber.Ctx) error {
	var req stkPushRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := h.parseOrderID(req.OrderID)
	if err != nil {
		return err
	}

	amount := req.Amount
	if amount.IsZero() && orderID != nil {
		amount, _, err = h.orders.GetOrderAmount(c.Context(), *orderID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = "Payment"
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Order payment"
	}

	attempt, err := h.mpesa.RequestPayment(c.Context(), services.ChargeRequest{
		OrderID:     orderID,
		Amount:      amount,
		Phone:       req.Phone,
		Reference:   reference,
		Description: description,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    attempt,
	})
}

// Payout initiates an M-Pesa B2C payment to a customer's phone.
func (h *PaymentHandler) Payout(c *fiber.Ctx) error {
	var req payoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := h.parseOrderID(req.OrderID)
	if err != nil {
		return err
	}

	attempt, err := h.mpesa.SendPayout(c.Context(), services.PayoutRequest{
		OrderID:  orderID,
		Amount:   req.Amount,
		Phone:    req.Phone,
		Remarks:  req.Remarks,
		Occasion: req.Occasion,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    attempt,
	})
}

// Get returns a single payment attempt.
func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	attempt, err := h.ledger.Get(c.Context(), attemptID)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": attempt})
}

// Query polls the provider for the current status of a pending attempt and
// folds the answer into the ledger. Safe to call repeatedly.
func (h *PaymentHandler) Query(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	attempt, err := h.ledger.Get(c.Context(), attemptID)
	if err != nil {
		return writeServiceError(c, err)
	}

	if attempt.Status.Terminal() {
		return c.JSON(fiber.Map{"success": true, "data": attempt})
	}
	if attempt.ExternalID == nil {
		return fiber.NewError(fiber.StatusConflict, "payment has no provider transaction yet")
	}
	if attempt.Direction == models.DirectionPayout {
		// The STK query endpoint cannot answer for a B2C ConversationID;
		// payout outcomes arrive via the result callback only.
		return fiber.NewError(fiber.StatusConflict, "payout status cannot be polled, wait for the result callback")
	}

	provider, ok := h.registry.For(attempt.Provider)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown provider")
	}

	status, err := provider.QueryStatus(c.Context(), *attempt.ExternalID)
	if err != nil {
		return writeServiceError(c, err)
	}

	updated, err := h.callbacks.ApplyProviderStatus(c.Context(), attempt, status)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// List returns payment attempt history, optionally filtered.
func (h *PaymentHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	filter := services.ListFilter{
		Provider:  strings.TrimSpace(c.Query("provider")),
		Status:    strings.TrimSpace(c.Query("status")),
		Direction: strings.TrimSpace(c.Query("direction")),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}

	if orderID := strings.TrimSpace(c.Query("order_id")); orderID != "" {
		parsed, err := uuid.Parse(orderID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
		}
		filter.OrderID = &parsed
	}

	attempts, total, err := h.ledger.List(c.Context(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    attempts,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

func (h *PaymentHandler) parseOrderID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}
	return &parsed, nil
}
