package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

const (
	room1URL = "https://feeds.example.test/room1.ics"
	room2URL = "https://feeds.example.test/room2.ics"
)

type recordingNotifier struct {
	mu      sync.Mutex
	results []models.SyncResult
}

func (n *recordingNotifier) SyncCompleted(result models.SyncResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
}

type syncFixture struct {
	fetcher  *fakeFetcher
	guests   *memoryGuests
	bookings *memoryBookings
	notifier *recordingNotifier
	service  *SyncService
}

func newSyncFixture(responses map[string]fakeResponse, urls ...string) *syncFixture {
	f := &syncFixture{
		fetcher:  newFakeFetcher(responses),
		guests:   newMemoryGuests(),
		bookings: newMemoryBookings(),
		notifier: &recordingNotifier{},
	}

	var feeds []models.FeedSource
	for i, u := range urls {
		feeds = append(feeds, models.FeedSource{RoomID: i + 1, URL: u})
	}

	f.service = NewSyncService(SyncOptions{
		Feeds:       feeds,
		Fetcher:     f.fetcher,
		Parser:      NewParser(fixedClock(testNow), 0),
		Guests:      f.guests,
		Bookings:    f.bookings,
		Defaults:    models.DefaultBookingDefaults(),
		Concurrency: 4,
		Clock:       fixedClock(testNow),
		Logger:      zap.NewNop(),
		Notifier:    f.notifier,
	})
	return f
}

func TestSyncCreatesGuestAndBooking(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed()},
		room2URL: {body: feed(vevent("m@test", "20240301T140000Z", "20240305T100000Z", "Mueller"))},
	}, room1URL, room2URL)

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.GuestsCreated != 1 || f.guests.count() != 1 {
		t.Errorf("guests created = %d (store %d), want 1", result.GuestsCreated, f.guests.count())
	}
	if result.Upserted != 1 {
		t.Errorf("Upserted = %d, want 1", result.Upserted)
	}

	rows := f.bookings.all()
	if len(rows) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(rows))
	}
	b := rows[0]
	if b.RoomID != 2 {
		t.Errorf("RoomID = %d, want 2", b.RoomID)
	}
	if !b.CheckIn.Equal(time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)) ||
		!b.CheckOut.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("interval = %s - %s", b.CheckIn, b.CheckOut)
	}
	if b.GuestID == nil || *b.GuestID != 1 {
		t.Errorf("GuestID = %v, want 1", b.GuestID)
	}
	if b.OccupantCount != 2 || b.Status != models.BookingStatusBooking {
		t.Errorf("defaults = %d / %q", b.OccupantCount, b.Status)
	}

	if len(f.notifier.results) != 1 {
		t.Errorf("notifier called %d times", len(f.notifier.results))
	}
	if last, ok := f.service.LastResult(); !ok || last.Upserted != 1 {
		t.Errorf("LastResult = %+v, %v", last, ok)
	}
}

func TestSyncFeedFailureIsIsolated(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room2URL: {body: feed(vevent("m@test", "20240301T140000Z", "20240305T100000Z", "Mueller"))},
	}, room1URL, room2URL)

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := result.Feeds[0]; got.Outcome != models.OutcomeErrored || got.RoomID != 1 || got.Error == "" {
		t.Errorf("room 1 result = %+v", got)
	}
	if got := result.Feeds[1]; got.Outcome != models.OutcomeOK || got.Accepted != 1 {
		t.Errorf("room 2 result = %+v", got)
	}
	if rows := f.bookings.all(); len(rows) != 1 || rows[0].RoomID != 2 {
		t.Errorf("bookings = %+v", rows)
	}
}

func TestSyncMalformedFeed(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: "<html>oops</html>"},
	}, room1URL)

	result, _ := f.service.Run(context.Background())
	if result.Feeds[0].Outcome != models.OutcomeErrored {
		t.Errorf("Outcome = %q", result.Feeds[0].Outcome)
	}
	if f.bookings.upsertCalls != 0 {
		t.Error("store should not be called with nothing to write")
	}
}

func TestSyncSkipsIncompleteAndDuplicateEvents(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed(
			vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Keller"),
			vevent("b@test", "20240301T140000Z", "20240305T100000Z", "Someone Else"),
			vevent("c@test", "20240310T140000Z", "", "Keller"),
			vevent("d@test", "20240320T140000Z", "20240322T100000Z", ""),
		)},
	}, room1URL)

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	fr := result.Feeds[0]
	if fr.EventsFound != 4 || fr.Accepted != 1 || fr.Duplicates != 1 || fr.Skipped != 2 {
		t.Errorf("feed result = %+v", fr)
	}

	rows := f.bookings.all()
	if len(rows) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(rows))
	}
	if *rows[0].GuestID != 1 {
		t.Errorf("first occurrence should win, got guest %d", *rows[0].GuestID)
	}
}

func TestSyncGuestFailureKeepsBooking(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed(vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Keller"))},
	}, room1URL)
	f.guests.findErr = errors.New("lookup failed")

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Feeds[0].GuestErrors != 1 {
		t.Errorf("GuestErrors = %d", result.Feeds[0].GuestErrors)
	}

	rows := f.bookings.all()
	if len(rows) != 1 || rows[0].GuestID != nil {
		t.Errorf("expected one booking without guest, got %+v", rows)
	}
}

func TestSyncSharedGuestAcrossFeeds(t *testing.T) {
	body := feed(vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Wagner"))
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: body},
		room2URL: {body: body},
	}, room1URL, room2URL)
	f.guests.delay = 5 * time.Millisecond

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.GuestsCreated != 1 || f.guests.count() != 1 {
		t.Errorf("guests created = %d, store = %d, want 1", result.GuestsCreated, f.guests.count())
	}
	if len(f.bookings.all()) != 2 {
		t.Errorf("expected one booking per room")
	}
}

func TestSyncRoomIDsIgnoreCompletionOrder(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed(vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Slow")), delay: 30 * time.Millisecond},
		room2URL: {body: feed(vevent("b@test", "20240401T140000Z", "20240405T100000Z", "Fast"))},
	}, room1URL, room2URL)

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i, fr := range result.Feeds {
		if fr.RoomID != i+1 {
			t.Errorf("Feeds[%d].RoomID = %d", i, fr.RoomID)
		}
	}

	rows := f.bookings.all()
	if len(rows) != 2 || rows[0].RoomID != 1 || rows[0].CheckIn.Month() != time.March || rows[1].RoomID != 2 {
		t.Errorf("bookings = %+v", rows)
	}
}

func TestSyncRerunReplacesBooking(t *testing.T) {
	responses := map[string]fakeResponse{
		room1URL: {body: feed(vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Keller"))},
	}
	f := newSyncFixture(responses, room1URL)

	if _, err := f.service.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.fetcher.mu.Lock()
	f.fetcher.responses[room1URL] = fakeResponse{body: feed(vevent("a@test", "20240301T140000Z", "20240306T100000Z", "Keller"))}
	f.fetcher.mu.Unlock()

	if _, err := f.service.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	rows := f.bookings.all()
	if len(rows) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(rows))
	}
	if rows[0].CheckOut.Day() != 6 {
		t.Errorf("CheckOut = %s, want updated value", rows[0].CheckOut)
	}
	if f.guests.count() != 1 {
		t.Errorf("second pass created another guest")
	}
}

func TestSyncStoreFailureIsReported(t *testing.T) {
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed(vevent("a@test", "20240301T140000Z", "20240305T100000Z", "Keller"))},
	}, room1URL)
	f.bookings.upsertErr = errors.New("database is locked")

	result, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.StoreError == "" || result.Upserted != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestSyncRejectsOverlappingRun(t *testing.T) {
	block := make(chan struct{})
	f := newSyncFixture(map[string]fakeResponse{
		room1URL: {body: feed(), block: block},
	}, room1URL)

	done, err := f.service.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !f.service.Running() {
		t.Error("Running should be true while a pass is active")
	}

	if _, err := f.service.Run(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second Run err = %v, want ErrSyncInProgress", err)
	}

	close(block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not finish")
	}

	if _, err := f.service.Run(context.Background()); err != nil {
		t.Errorf("Run after completion: %v", err)
	}
}

func TestSyncNoFeedsLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewSyncService(SyncOptions{
		Fetcher:  newFakeFetcher(nil),
		Guests:   newMemoryGuests(),
		Bookings: newMemoryBookings(),
		Clock:    fixedClock(testNow),
		Logger:   zap.New(core),
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Feeds) != 0 || result.Upserted != 0 {
		t.Errorf("result = %+v", result)
	}
	if logs.FilterMessage("no feeds configured").Len() != 1 {
		t.Error("expected a warning about missing feeds")
	}
}
