package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// GuestRepository provides data access for guests.
type GuestRepository struct {
	BaseRepository
}

// NewGuestRepository creates a new guest repository.
func NewGuestRepository(db *DB) *GuestRepository {
	return &GuestRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// FindBySurname returns the first guest (lowest id) whose surname contains
// name, ignoring case. It returns nil when nothing matches.
func (r *GuestRepository) FindBySurname(ctx context.Context, name string) (*models.Guest, error) {
	guest := &models.Guest{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, surname FROM guests
		WHERE surname LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY id
		LIMIT 1
	`, EscapeLike(name)).Scan(&guest.ID, &guest.Surname)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying guest: %w", err)
	}

	return guest, nil
}

// Create inserts a new guest and returns it with its assigned id.
func (r *GuestRepository) Create(ctx context.Context, surname string) (*models.Guest, error) {
	result, err := r.DB().ExecContext(ctx, `INSERT INTO guests (surname) VALUES (?)`, surname)
	if err != nil {
		return nil, fmt.Errorf("inserting guest: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading guest id: %w", err)
	}

	return &models.Guest{ID: id, Surname: surname}, nil
}

// Count returns the number of stored guests.
func (r *GuestRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM guests").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting guests: %w", err)
	}
	return n, nil
}
