package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/seludoto/dolesecommerce/internal/services"
)

// CallbackHandler receives asynchronous provider notifications. Once a
// payload is structurally valid the provider always gets a success
// acknowledgment, even when internal processing is deferred or the
// transaction is unknown; anything else triggers provider retry storms.
type CallbackHandler struct {
	callbacks *services.CallbackService
}

func NewCallbackHandler(callbacks *services.CallbackService) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

// MpesaStk handles the STK push result callback.
func (h *CallbackHandler) MpesaStk(c *fiber.Ctx) error {
	return h.acknowledge(c, "stk", func(ctx context.Context, payload []byte) error {
		return h.callbacks.ProcessStkCallback(ctx, payload)
	})
}

// MpesaB2CResult handles the B2C result callback.
func (h *CallbackHandler) MpesaB2CResult(c *fiber.Ctx) error {
	return h.acknowledge(c, "b2c-result", func(ctx context.Context, payload []byte) error {
		return h.callbacks.ProcessB2CResult(ctx, payload)
	})
}

// MpesaB2CTimeout handles the B2C queue timeout callback.
func (h *CallbackHandler) MpesaB2CTimeout(c *fiber.Ctx) error {
	return h.acknowledge(c, "b2c-timeout", func(ctx context.Context, payload []byte) error {
		return h.callbacks.ProcessB2CTimeout(ctx, payload)
	})
}

// Pi handles Pi Network payment notifications.
func (h *CallbackHandler) Pi(c *fiber.Ctx) error {
	return h.acknowledge(c, "pi", func(ctx context.Context, payload []byte) error {
		return h.callbacks.ProcessPiCallback(ctx, payload)
	})
}

func (h *CallbackHandler) acknowledge(c *fiber.Ctx, kind string, process func(context.Context, []byte) error) error {
	// The body is copied because fiber reuses its buffers after the
	// handler returns and the payload is persisted as evidence.
	payload := make([]byte, len(c.Body()))
	copy(payload, c.Body())

	if err := process(c.Context(), payload); err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			log.Printf("[Callback] rejected %s payload: %s", kind, validation.Reason)
			return fiber.NewError(fiber.StatusBadRequest, validation.Reason)
		}

		var unknown *services.UnknownTransactionError
		if errors.As(err, &unknown) {
			// Acknowledged so the provider stops retrying; kept in the log
			// for manual reconciliation.
			log.Printf("[Callback] %s: %v", kind, err)
			return ack(c)
		}

		log.Printf("[Callback] %s processing failed, acknowledged anyway: %v", kind, err)
		return ack(c)
	}

	return ack(c)
}

func ack(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}
