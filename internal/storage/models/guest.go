package models

// Guest is a persisted person record referenced by bookings.
type Guest struct {
	ID      int64  `json:"id"`
	Surname string `json:"surname"`
}
