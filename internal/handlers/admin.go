package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/services"
)

// AdminHandler hosts the manual override surface used when a provider's
// callback never arrives and polling cannot settle the question either.
type AdminHandler struct {
	ledger     *services.LedgerService
	reconciler *services.Reconciler
	pi         *services.PiService
}

func NewAdminHandler(ledger *services.LedgerService, reconciler *services.Reconciler, pi *services.PiService) *AdminHandler {
	return &AdminHandler{ledger: ledger, reconciler: reconciler, pi: pi}
}

type overrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Override forces a pending attempt into a terminal status. The reason is
// mandatory; it ends up on the row as the result description.
func (h *AdminHandler) Override(c *fiber.Ctx) error {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	var req overrideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return fiber.NewError(fiber.StatusBadRequest, "reason is required")
	}

	target := models.PaymentStatus(req.Status)
	if target != models.StatusSucceeded && target != models.StatusFailed {
		return fiber.NewError(fiber.StatusBadRequest, "status must be succeeded or failed")
	}

	attempt, err := h.ledger.Transition(c.Context(), attemptID, target, map[string]any{
		"result_desc": "manual override: " + reason,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	log.Printf("[Admin] attempt %s overridden to %s: %s", attemptID, target, reason)
	h.reconciler.Reconcile(c.Context(), attempt)

	return c.JSON(fiber.Map{"success": true, "data": attempt})
}

// IncompletePiPayments lists the provider's open server payments so an
// operator can decide which to complete or cancel.
func (h *AdminHandler) IncompletePiPayments(c *fiber.Ctx) error {
	payments, err := h.pi.IncompletePayments(c.Context())
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": payments})
}
