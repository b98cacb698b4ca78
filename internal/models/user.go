package models

// User represents an authenticated traveler account.
type User struct {
	BaseModel
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	Phone        string    `json:"phone"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Bookings     []Booking `json:"bookings,omitempty"`
}
