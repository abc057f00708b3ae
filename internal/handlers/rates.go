package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/seludoto/dolesecommerce/internal/services"
	"github.com/seludoto/dolesecommerce/internal/utils"
)

// RateHandler exposes the PI/USD exchange-rate record set. Reads are open
// to authenticated users; writes sit behind the admin key.
type RateHandler struct {
	rates *services.RatesService
}

func NewRateHandler(rates *services.RatesService) *RateHandler {
	return &RateHandler{rates: rates}
}

type createRateRequest struct {
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

// Latest returns the authoritative rate.
func (h *RateHandler) Latest(c *fiber.Ctx) error {
	rate, err := h.rates.Latest(c.Context())
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": rate})
}

// List returns rate history, newest first.
func (h *RateHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	rates, total, err := h.rates.List(c.Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rates,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// Create appends a new rate record.
func (h *RateHandler) Create(c *fiber.Ctx) error {
	var req createRateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "manual"
	}

	rate, err := h.rates.Put(c.Context(), req.Rate, source)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": rate})
}
