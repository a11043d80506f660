package calendar

import (
	"context"
	"fmt"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const exportProductID = "-//room-calendar-sync//occupancy export//EN"

// Renderer serializes a room's bookings as an iCalendar document.
type Renderer struct {
	bookings BookingStore
	clock    Clock
	logger   *zap.Logger
}

// NewRenderer creates a renderer reading from bookings.
func NewRenderer(bookings BookingStore, clock Clock, logger *zap.Logger) *Renderer {
	if clock == nil {
		clock = SystemClock
	}
	return &Renderer{bookings: bookings, clock: clock, logger: logger}
}

// Export renders every booking of roomID as one VEVENT. A room without
// bookings yields a valid, empty calendar. Store failures are returned as
// *RenderError.
func (r *Renderer) Export(ctx context.Context, roomID int) (string, error) {
	bookings, err := r.bookings.ListByRoom(ctx, roomID)
	if err != nil {
		return "", &RenderError{RoomID: roomID, Err: err}
	}

	if len(bookings) == 0 {
		r.logger.Info("no bookings for room", zap.Int("room_id", roomID))
	}

	now := r.clock.Now()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(exportProductID)
	cal.SetXWRCalName(fmt.Sprintf("Room %d occupancy", roomID))

	for _, b := range bookings {
		ev := cal.AddEvent(eventUID(roomID, b.CheckIn.UTC().Format("20060102T150405Z")))
		ev.SetDtStampTime(now)
		ev.SetStartAt(b.CheckIn)
		ev.SetEndAt(b.CheckOut)
		ev.SetSummary(fmt.Sprintf("Occupied (%d guests)", b.OccupantCount))
		ev.SetLocation(fmt.Sprintf("Room %d", roomID))
		ev.SetDescription("Booking for guest ID: " + formatGuestID(b.GuestID))
	}

	return cal.Serialize(), nil
}

// eventUID is stable for a booking so subscribers can track updates.
func eventUID(roomID int, checkIn string) string {
	name := fmt.Sprintf("room-%d/%s", roomID, checkIn)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@room-calendar-sync"
}
