package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/room-calendar-sync/backend/internal/storage"
	"github.com/room-calendar-sync/backend/internal/storage/models"
)

type GuestRepository struct {
	db *DB
}

func NewGuestRepository(db *DB) *GuestRepository { return &GuestRepository{db: db} }

// FindBySurname returns the lowest-id guest whose surname contains name
// (ILIKE), or nil when none does.
func (r *GuestRepository) FindBySurname(ctx context.Context, name string) (*models.Guest, error) {
	var g models.Guest
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, surname FROM guests
		WHERE surname ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY id
		LIMIT 1`, storage.EscapeLike(name)).Scan(&g.ID, &g.Surname)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select guest: %w", err)
	}
	return &g, nil
}

func (r *GuestRepository) Create(ctx context.Context, surname string) (*models.Guest, error) {
	g := models.Guest{Surname: surname}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO guests (surname) VALUES ($1) RETURNING id`, surname).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("insert guest: %w", err)
	}
	return &g, nil
}
