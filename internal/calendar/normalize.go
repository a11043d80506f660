package calendar

import (
	"sync"
	"time"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// dedupKey collapses duplicate events within one sync pass.
type dedupKey struct {
	roomID int
	start  string
	end    string
}

// WorkingSet accumulates the bookings of one sync pass. The first event
// seen for a (room, start, end) triple wins. It is safe for concurrent use.
type WorkingSet struct {
	defaults models.BookingDefaults

	mu       sync.Mutex
	seen     map[dedupKey]struct{}
	bookings []models.Booking
}

// NewWorkingSet creates an empty working set applying defaults to every booking.
func NewWorkingSet(defaults models.BookingDefaults) *WorkingSet {
	return &WorkingSet{
		defaults: defaults,
		seen:     make(map[dedupKey]struct{}),
	}
}

// Normalize builds the canonical booking for ev in roomID and adds it to the
// set. It returns false when the same event was already added in this pass.
func (ws *WorkingSet) Normalize(ev models.FeedEvent, roomID int, guestID *int64, now time.Time) (models.Booking, bool) {
	start := ev.Start.UTC()
	end := ev.End.UTC()
	key := dedupKey{
		roomID: roomID,
		start:  start.Format(time.RFC3339Nano),
		end:    end.Format(time.RFC3339Nano),
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if _, dup := ws.seen[key]; dup {
		return models.Booking{}, false
	}
	ws.seen[key] = struct{}{}

	b := models.Booking{
		RoomID:         roomID,
		CheckIn:        start,
		CheckOut:       end,
		GuestID:        guestID,
		OccupantCount:  ws.defaults.OccupantCount,
		PricePerPerson: ws.defaults.PricePerPerson,
		Deposit:        ws.defaults.Deposit,
		Status:         ws.defaults.Status,
		MealPlan:       ws.defaults.MealPlan,
		PetFlag:        ws.defaults.PetFlag,
		Surcharge:      ws.defaults.Surcharge,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	ws.bookings = append(ws.bookings, b)
	return b, true
}

// Bookings returns a copy of the accumulated bookings in insertion order.
func (ws *WorkingSet) Bookings() []models.Booking {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	out := make([]models.Booking, len(ws.bookings))
	copy(out, ws.bookings)
	return out
}

// Len returns the number of accumulated bookings.
func (ws *WorkingSet) Len() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.bookings)
}
