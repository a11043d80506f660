package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

var testNow = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

type fakeResponse struct {
	body  string
	err   error
	delay time.Duration
	block chan struct{}
}

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

func newFakeFetcher(responses map[string]fakeResponse) *fakeFetcher {
	return &fakeFetcher{responses: responses}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	resp, ok := f.responses[url]
	f.mu.Unlock()

	if !ok {
		return nil, &FetchError{URL: url, StatusCode: 404}
	}
	if resp.block != nil {
		select {
		case <-resp.block:
		case <-ctx.Done():
			return nil, &FetchError{URL: url, Err: ctx.Err()}
		}
	}
	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return []byte(resp.body), nil
}

// memoryGuests is an in-memory GuestStore with the same matching rule as
// the SQL repositories.
type memoryGuests struct {
	mu          sync.Mutex
	guests      []models.Guest
	nextID      int64
	findErr     error
	createErr   error
	createCalls int
	delay       time.Duration
}

func newMemoryGuests(surnames ...string) *memoryGuests {
	m := &memoryGuests{nextID: 1}
	for _, s := range surnames {
		m.guests = append(m.guests, models.Guest{ID: m.nextID, Surname: s})
		m.nextID++
	}
	return m
}

func (m *memoryGuests) FindBySurname(ctx context.Context, name string) (*models.Guest, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	needle := strings.ToLower(name)
	for _, g := range m.guests {
		if strings.Contains(strings.ToLower(g.Surname), needle) {
			found := g
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryGuests) Create(ctx context.Context, surname string) (*models.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	g := models.Guest{ID: m.nextID, Surname: surname}
	m.nextID++
	m.guests = append(m.guests, g)
	return &g, nil
}

func (m *memoryGuests) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guests)
}

// memoryBookings is an in-memory BookingStore keyed like the real table.
type memoryBookings struct {
	mu          sync.Mutex
	rows        map[models.UpsertKey]models.Booking
	upsertErr   error
	listErr     error
	upsertCalls int
}

func newMemoryBookings(bookings ...models.Booking) *memoryBookings {
	m := &memoryBookings{rows: make(map[models.UpsertKey]models.Booking)}
	for _, b := range bookings {
		m.rows[b.Key()] = b
	}
	return m
}

func (m *memoryBookings) Upsert(ctx context.Context, bookings []models.Booking) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCalls++
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	for _, b := range bookings {
		if existing, ok := m.rows[b.Key()]; ok {
			b.CreatedAt = existing.CreatedAt
		}
		m.rows[b.Key()] = b
	}
	return len(bookings), nil
}

func (m *memoryBookings) ListByRoom(ctx context.Context, roomID int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Booking
	for _, b := range m.rows {
		if b.RoomID == roomID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func (m *memoryBookings) all() []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Booking, 0, len(m.rows))
	for _, b := range m.rows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomID != out[j].RoomID {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].CheckIn.Before(out[j].CheckIn)
	})
	return out
}

// feed builds a calendar document from VEVENT bodies.
func feed(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//feed//EN\r\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		for _, line := range strings.Split(strings.TrimSpace(ev), "\n") {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString("\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func vevent(uid, start, end, summary string) string {
	lines := []string{"UID:" + uid, "DTSTAMP:20240101T000000Z"}
	if start != "" {
		lines = append(lines, "DTSTART:"+start)
	}
	if end != "" {
		lines = append(lines, "DTEND:"+end)
	}
	if summary != "" {
		lines = append(lines, "SUMMARY:"+summary)
	}
	return strings.Join(lines, "\n")
}
