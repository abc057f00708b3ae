package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/services"
)

// PiHandler manages Pi Network payment endpoints.
type PiHandler struct {
	pi     *services.PiService
	orders *services.OrderService
}

func NewPiHandler(pi *services.PiService, orders *services.OrderService) *PiHandler {
	return &PiHandler{pi: pi, orders: orders}
}

type createPiPaymentRequest struct {
	OrderID     string          `json:"order_id"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
}

type completePiPaymentRequest struct {
	TxID string `json:"txid"`
}

// Quote converts a fiat amount into Pi at the latest exchange rate.
func (h *PiHandler) Quote(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("amount"))
	if raw == "" {
		return fiber.NewError(fiber.StatusBadRequest, "amount is required")
	}

	fiat, err := decimal.NewFromString(raw)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid amount")
	}

	piAmount, rate, err := h.pi.Quote(c.Context(), fiat)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"amount_usd":   fiat,
			"amount_pi":    piAmount,
			"rate":         rate.Rate,
			"effective_at": rate.EffectiveAt,
		},
	})
}

// Create initiates a Pi payment for a fiat amount. When an order is
// referenced and no amount is given, the order's total is used.
func (h *PiHandler) Create(c *fiber.Ctx) error {
	var req createPiPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var orderID *uuid.UUID
	if raw := strings.TrimSpace(req.OrderID); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
		}
		orderID = &parsed
	}

	amount := req.AmountUSD
	if amount.IsZero() && orderID != nil {
		var err error
		amount, _, err = h.orders.GetOrderAmount(c.Context(), *orderID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Order payment"
	}

	attempt, err := h.pi.RequestPayment(c.Context(), services.ChargeRequest{
		OrderID:     orderID,
		Amount:      amount,
		Reference:   strings.TrimSpace(req.Reference),
		Description: description,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": attempt})
}

// Approve runs the server-side approval phase of the two-phase protocol.
func (h *PiHandler) Approve(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	attempt, err := h.pi.Approve(c.Context(), attemptID)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": attempt})
}

// Complete settles the payment after the payer has signed the blockchain
// transaction.
func (h *PiHandler) Complete(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	var req completePiPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.pi.Complete(c.Context(), attemptID, strings.TrimSpace(req.TxID))
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": attempt})
}

// Cancel voids a pending Pi payment.
func (h *PiHandler) Cancel(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	attempt, err := h.pi.Cancel(c.Context(), attemptID)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": attempt})
}
