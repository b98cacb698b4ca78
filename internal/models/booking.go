package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking stores one flight reservation and its itinerary snapshot.
type Booking struct {
	BaseModel
	UserID          uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	User            *User       `json:"user,omitempty"`
	Reference       string      `gorm:"uniqueIndex" json:"reference"`
	Status          string      `json:"status"`
	FlightNumber    string      `json:"flight_number"`
	Airline         string      `json:"airline"`
	Origin          string      `json:"origin"`
	Destination     string      `json:"destination"`
	DepartureTime   time.Time   `json:"departure_time"`
	ArrivalTime     time.Time   `json:"arrival_time"`
	CabinClass      string      `json:"cabin_class"`
	TotalAmount     int64       `json:"total_amount"`
	Currency        string      `json:"currency"`
	ContactEmail    string      `json:"contact_email"`
	ContactPhone    string      `json:"contact_phone"`
	Passengers      []Passenger `json:"passengers,omitempty"`
	Payments        []Payment   `json:"payments,omitempty"`
}

// Passenger is one traveler on a booking.
type Passenger struct {
	BaseModel
	BookingID      uuid.UUID `gorm:"type:uuid;index" json:"booking_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    string    `json:"date_of_birth"`
	PassportNumber string    `json:"passport_number"`
	Nationality    string    `json:"nationality"`
	SeatPreference string    `json:"seat_preference"`
}

// Booking statuses.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)
