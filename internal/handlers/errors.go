package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/services"
)

// writeServiceError maps service-layer errors to HTTP responses. Provider
// and auth failures reach the user as a generic message; the detail goes to
// the operational log only.
func writeServiceError(c *fiber.Ctx, err error) error {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		return fiber.NewError(fiber.StatusBadRequest, validation.Reason)
	}

	var notReady *services.PaymentNotReadyError
	if errors.As(err, &notReady) {
		return fiber.NewError(fiber.StatusConflict, notReady.Error())
	}

	if errors.Is(err, services.ErrStaleRate) {
		log.Printf("[Payments] quote refused: %v", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "exchange rate unavailable, try again later")
	}

	var authErr *services.AuthenticationError
	var reqErr *services.ProviderRequestError
	if errors.As(err, &authErr) || errors.As(err, &reqErr) {
		log.Printf("[Payments] provider failure: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "payment could not be processed, try again")
	}

	var invalid *services.InvalidTransitionError
	if errors.As(err, &invalid) {
		log.Printf("[Payments] invalid transition: %v", err)
		return fiber.NewError(fiber.StatusConflict, "payment is not in a state that allows this operation")
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "payment not found")
	}

	return err
}
