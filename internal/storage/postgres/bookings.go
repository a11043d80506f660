package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

type BookingRepository struct {
	db *DB
}

func NewBookingRepository(db *DB) *BookingRepository { return &BookingRepository{db: db} }

var bookingCols = []string{
	"room_id", "check_in", "check_out", "guest_id", "occupant_count", "price_per_person",
	"deposit", "status", "meal_plan", "pet_flag", "surcharge", "created_at", "updated_at",
}

// maxParams is the bind parameter limit of the extended query protocol.
const maxParams = 65535

// rowsPerStatement is how many bookings fit in one INSERT.
var rowsPerStatement = maxParams / len(bookingCols)

// Upsert writes all bookings in one transaction, as INSERT ... ON CONFLICT
// statements of at most rowsPerStatement rows each. Callers must not pass
// two bookings with the same (room_id, check_in).
func (r *BookingRepository) Upsert(ctx context.Context, items []models.Booking) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	written := 0
	for _, chunk := range chunkBookings(items, rowsPerStatement) {
		sql, args := upsertStatement(chunk)
		ct, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert bookings: %w", err)
		}
		written += int(ct.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

// chunkBookings splits items into consecutive slices of at most size rows.
func chunkBookings(items []models.Booking, size int) [][]models.Booking {
	var chunks [][]models.Booking
	for len(items) > size {
		chunks = append(chunks, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

// upsertStatement builds one multi-row INSERT for items. Every column except
// the key and created_at is replaced on conflict.
func upsertStatement(items []models.Booking) (string, []any) {
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(bookingCols))

	argi := 1
	for _, b := range items {
		ph := make([]string, 0, len(bookingCols))
		args = append(args,
			b.RoomID, b.CheckIn.UTC(), b.CheckOut.UTC(), b.GuestID, b.OccupantCount, b.PricePerPerson,
			b.Deposit, b.Status, b.MealPlan, b.PetFlag, b.Surcharge, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
		)
		for range bookingCols {
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	updates := make([]string, 0, len(bookingCols))
	for _, c := range bookingCols {
		switch c {
		case "room_id", "check_in", "created_at":
			continue
		}
		updates = append(updates, c+" = EXCLUDED."+c)
	}

	sql := "INSERT INTO bookings (" + strings.Join(bookingCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT (room_id, check_in) DO UPDATE SET " + strings.Join(updates, ", ")
	return sql, args
}

func (r *BookingRepository) ListByRoom(ctx context.Context, roomID int) ([]models.Booking, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT room_id, check_in, check_out, guest_id, occupant_count, price_per_person::float8,
		       deposit::float8, status, meal_plan, pet_flag, surcharge::float8, created_at, updated_at
		FROM bookings
		WHERE room_id = $1
		ORDER BY check_in`, roomID)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}

	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Booking, error) {
		var b models.Booking
		err := row.Scan(
			&b.RoomID, &b.CheckIn, &b.CheckOut, &b.GuestID, &b.OccupantCount, &b.PricePerPerson,
			&b.Deposit, &b.Status, &b.MealPlan, &b.PetFlag, &b.Surcharge, &b.CreatedAt, &b.UpdatedAt,
		)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	return bookings, nil
}
