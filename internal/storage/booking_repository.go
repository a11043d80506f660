package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Upsert writes all bookings in one transaction. Rows with an existing
// (room_id, check_in) are replaced, created_at is kept from the first insert.
func (r *BookingRepository) Upsert(ctx context.Context, bookings []models.Booking) (int, error) {
	if len(bookings) == 0 {
		return 0, nil
	}

	written := 0
	err := r.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bookings (
				room_id, check_in, check_out, guest_id, occupant_count, price_per_person,
				deposit, status, meal_plan, pet_flag, surcharge, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (room_id, check_in) DO UPDATE SET
				check_out = excluded.check_out,
				guest_id = excluded.guest_id,
				occupant_count = excluded.occupant_count,
				price_per_person = excluded.price_per_person,
				deposit = excluded.deposit,
				status = excluded.status,
				meal_plan = excluded.meal_plan,
				pet_flag = excluded.pet_flag,
				surcharge = excluded.surcharge,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bookings {
			_, err := stmt.ExecContext(ctx,
				b.RoomID, b.CheckIn.UTC(), b.CheckOut.UTC(), b.GuestID, b.OccupantCount,
				b.PricePerPerson, b.Deposit, b.Status, b.MealPlan, b.PetFlag, b.Surcharge,
				b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("upserting booking room=%d check_in=%s: %w", b.RoomID, b.CheckIn.UTC().Format("2006-01-02T15:04:05Z"), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// ListByRoom retrieves all bookings for a room ordered by check-in.
func (r *BookingRepository) ListByRoom(ctx context.Context, roomID int) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT room_id, check_in, check_out, guest_id, occupant_count, price_per_person,
		       deposit, status, meal_plan, pet_flag, surcharge, created_at, updated_at
		FROM bookings
		WHERE room_id = ?
		ORDER BY check_in
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		var guestID sql.NullInt64
		if err := rows.Scan(
			&b.RoomID, &b.CheckIn, &b.CheckOut, &guestID, &b.OccupantCount, &b.PricePerPerson,
			&b.Deposit, &b.Status, &b.MealPlan, &b.PetFlag, &b.Surcharge, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		if guestID.Valid {
			id := guestID.Int64
			b.GuestID = &id
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}
