package models

import "time"

// Booking is a persisted occupancy record for a room over a date range.
// (RoomID, CheckIn) is unique in the store.
type Booking struct {
	RoomID         int       `json:"room_id"`
	CheckIn        time.Time `json:"check_in"`
	CheckOut       time.Time `json:"check_out"`
	GuestID        *int64    `json:"guest_id,omitempty"`
	OccupantCount  int       `json:"occupant_count"`
	PricePerPerson float64   `json:"price_per_person"`
	Deposit        float64   `json:"deposit"`
	Status         string    `json:"status"`
	MealPlan       string    `json:"meal_plan"`
	PetFlag        bool      `json:"pet_flag"`
	Surcharge      float64   `json:"surcharge"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BookingDefaults are the fixed values applied to every synced booking.
type BookingDefaults struct {
	OccupantCount  int
	PricePerPerson float64
	Deposit        float64
	Status         string
	MealPlan       string
	PetFlag        bool
	Surcharge      float64
}

// Booking status constants
const (
	BookingStatusBooking = "booking"
)

// DefaultBookingDefaults returns the defaults used when nothing is configured.
func DefaultBookingDefaults() BookingDefaults {
	return BookingDefaults{
		OccupantCount: 2,
		Status:        BookingStatusBooking,
		MealPlan:      "Frühstück",
	}
}

// UpsertKey identifies a booking in the store.
type UpsertKey struct {
	RoomID  int
	CheckIn time.Time
}

// Key returns the store uniqueness key of the booking.
func (b Booking) Key() UpsertKey {
	return UpsertKey{RoomID: b.RoomID, CheckIn: b.CheckIn.UTC()}
}
