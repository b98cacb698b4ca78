package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/skyfare/internal/services"
)

// FlightHandler proxies flight searches to the external flight-data API.
type FlightHandler struct {
	flights *services.FlightService
}

func NewFlightHandler(flights *services.FlightService) *FlightHandler {
	return &FlightHandler{flights: flights}
}

// Search looks up flight offers for a route and date.
func (h *FlightHandler) Search(c *fiber.Ctx) error {
	origin := strings.TrimSpace(c.Query("origin"))
	destination := strings.TrimSpace(c.Query("destination"))
	date := strings.TrimSpace(c.Query("date"))

	if origin == "" || destination == "" || date == "" {
		return fiber.NewError(fiber.StatusBadRequest, "origin, destination and date are required")
	}

	adults, _ := strconv.Atoi(c.Query("adults", "1"))

	offers, err := h.flights.Search(c.Context(), services.SearchParams{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Adults:      adults,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "flight search unavailable")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    offers,
	})
}
