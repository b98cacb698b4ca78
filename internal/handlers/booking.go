package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/skyfare/internal/middleware"
	"github.com/example/skyfare/internal/models"
	"github.com/example/skyfare/internal/utils"
)

// BookingHandler manages flight reservations.
type BookingHandler struct {
	db *gorm.DB
}

func NewBookingHandler(db *gorm.DB) *BookingHandler {
	return &BookingHandler{db: db}
}

type passengerRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	PassportNumber string `json:"passport_number"`
	Nationality    string `json:"nationality"`
	SeatPreference string `json:"seat_preference"`
}

type createBookingRequest struct {
	FlightNumber  string             `json:"flight_number"`
	Airline       string             `json:"airline"`
	Origin        string             `json:"origin"`
	Destination   string             `json:"destination"`
	DepartureTime time.Time          `json:"departure_time"`
	ArrivalTime   time.Time          `json:"arrival_time"`
	CabinClass    string             `json:"cabin_class"`
	TotalAmount   int64              `json:"total_amount"`
	Currency      string             `json:"currency"`
	ContactEmail  string             `json:"contact_email"`
	ContactPhone  string             `json:"contact_phone"`
	Passengers    []passengerRequest `json:"passengers"`
}

// CreateBooking records a reservation for the authenticated user.
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.FlightNumber == "" || req.Origin == "" || req.Destination == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing flight details")
	}
	if req.TotalAmount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid total amount")
	}
	if len(req.Passengers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one passenger is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EGP"
	}

	booking := models.Booking{
		UserID:        userID,
		Reference:     newBookingReference(),
		Status:        models.BookingStatusPending,
		FlightNumber:  req.FlightNumber,
		Airline:       req.Airline,
		Origin:        strings.ToUpper(req.Origin),
		Destination:   strings.ToUpper(req.Destination),
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		CabinClass:    req.CabinClass,
		TotalAmount:   req.TotalAmount,
		Currency:      currency,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
	}

	for _, p := range req.Passengers {
		booking.Passengers = append(booking.Passengers, models.Passenger{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			DateOfBirth:    p.DateOfBirth,
			PassportNumber: p.PassportNumber,
			Nationality:    p.Nationality,
			SeatPreference: p.SeatPreference,
		})
	}

	if err := h.db.Create(&booking).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"booking": booking,
	})
}

// ListBookings returns the authenticated user's reservations.
func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Booking{}).Where("user_id = ?", userID)

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var bookings []models.Booking
	if err := query.
		Preload("Passengers").
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&bookings).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    bookings,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetBooking returns one reservation with its passengers and payments.
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid booking id")
	}

	var booking models.Booking
	if err := h.db.
		Preload("Passengers").
		Preload("Payments").
		Where("id = ? AND user_id = ?", bookingID, userID).
		First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "booking not found")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"booking": booking,
	})
}

func newBookingReference() string {
	return fmt.Sprintf("SKY-%s", strings.ToUpper(uuid.NewString()[:8]))
}
