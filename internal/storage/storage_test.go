package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return db
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := RunMigrations(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("recorded migrations = %d, want 1", n)
	}
}

func TestGuestRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGuestRepository(openTestDB(t))

	g, err := repo.FindBySurname(ctx, "Mueller")
	if err != nil || g != nil {
		t.Fatalf("empty table: %v, %v", g, err)
	}

	for _, name := range []string{"Anna Mueller", "Mueller", "Schmidt"} {
		if _, err := repo.Create(ctx, name); err != nil {
			t.Fatal(err)
		}
	}

	g, err = repo.FindBySurname(ctx, "mueller")
	if err != nil {
		t.Fatal(err)
	}
	if g == nil || g.ID != 1 || g.Surname != "Anna Mueller" {
		t.Errorf("first match = %+v, want lowest id", g)
	}

	if n, _ := repo.Count(ctx); n != 3 {
		t.Errorf("Count = %d", n)
	}
}

func TestGuestRepositoryMatchesWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	repo := NewGuestRepository(openTestDB(t))
	repo.Create(ctx, "Room_5")

	for _, name := range []string{"%", "Roo__5", "Room%"} {
		g, err := repo.FindBySurname(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if g != nil {
			t.Errorf("FindBySurname(%q) matched %q", name, g.Surname)
		}
	}

	if g, _ := repo.FindBySurname(ctx, "m_5"); g == nil {
		t.Error("literal underscore should match")
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain": "plain",
		"50%":   `50\%`,
		"a_b":   `a\_b`,
		`c:\x`:  `c:\\x`,
	}
	for in, want := range tests {
		if got := EscapeLike(in); got != want {
			t.Errorf("EscapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBookingRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	guests := NewGuestRepository(db)
	repo := NewBookingRepository(db)

	guest, err := guests.Create(ctx, "Mueller")
	if err != nil {
		t.Fatal(err)
	}

	created := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	checkIn := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	b := models.Booking{
		RoomID:        2,
		CheckIn:       checkIn,
		CheckOut:      time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		GuestID:       &guest.ID,
		OccupantCount: 2,
		Status:        models.BookingStatusBooking,
		MealPlan:      "Frühstück",
		CreatedAt:     created,
		UpdatedAt:     created,
	}

	if n, err := repo.Upsert(ctx, []models.Booking{b}); err != nil || n != 1 {
		t.Fatalf("first upsert = %d, %v", n, err)
	}

	later := created.Add(time.Hour)
	b.CheckOut = b.CheckOut.Add(24 * time.Hour)
	b.GuestID = nil
	b.CreatedAt = later
	b.UpdatedAt = later
	if _, err := repo.Upsert(ctx, []models.Booking{b}); err != nil {
		t.Fatal(err)
	}

	rows, err := repo.ListByRoom(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if !got.CheckIn.Equal(checkIn) || got.CheckOut.Day() != 6 {
		t.Errorf("interval = %s - %s", got.CheckIn, got.CheckOut)
	}
	if got.GuestID != nil {
		t.Errorf("GuestID = %d, want nil", *got.GuestID)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(later) {
		t.Errorf("created/updated = %s / %s", got.CreatedAt, got.UpdatedAt)
	}
	if got.MealPlan != "Frühstück" || got.OccupantCount != 2 {
		t.Errorf("row = %+v", got)
	}
}

func TestBookingRepositoryListByRoom(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingRepository(openTestDB(t))
	base := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	in := []models.Booking{
		{RoomID: 1, CheckIn: base.Add(48 * time.Hour), CheckOut: base.Add(72 * time.Hour)},
		{RoomID: 1, CheckIn: base, CheckOut: base.Add(24 * time.Hour)},
		{RoomID: 3, CheckIn: base, CheckOut: base.Add(24 * time.Hour)},
	}
	if _, err := repo.Upsert(ctx, in); err != nil {
		t.Fatal(err)
	}

	rows, err := repo.ListByRoom(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || !rows[0].CheckIn.Equal(base) {
		t.Errorf("rows = %+v", rows)
	}

	empty, err := repo.ListByRoom(ctx, 9)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty room = %v, %v", empty, err)
	}
}

func TestBookingRepositoryUpsertEmpty(t *testing.T) {
	n, err := NewBookingRepository(openTestDB(t)).Upsert(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Upsert(nil) = %d, %v", n, err)
	}
}
