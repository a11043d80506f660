package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/calendar"
	"github.com/room-calendar-sync/backend/internal/storage"
	"github.com/room-calendar-sync/backend/internal/storage/postgres"
)

// backingStore bundles the repositories of one storage backend.
type backingStore struct {
	kind     string
	guests   calendar.GuestStore
	bookings calendar.BookingStore
	ping     func(ctx context.Context) error
	close    func() error
}

func (s *backingStore) Ping(ctx context.Context) error { return s.ping(ctx) }

func (s *backingStore) Close() error { return s.close() }

// openStore connects to the backend named by endpoint and applies its
// migrations. postgres:// and postgresql:// URLs select PostgreSQL with key
// as the password; sqlite:// URLs and bare paths select SQLite.
func openStore(ctx context.Context, endpoint, key string, logger *zap.Logger) (*backingStore, error) {
	switch {
	case strings.HasPrefix(endpoint, "postgres://"), strings.HasPrefix(endpoint, "postgresql://"):
		db, err := postgres.Connect(ctx, endpoint, key)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return &backingStore{
			kind:     "postgres",
			guests:   postgres.NewGuestRepository(db),
			bookings: postgres.NewBookingRepository(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil

	default:
		db, err := storage.NewDB(strings.TrimPrefix(endpoint, "sqlite://"))
		if err != nil {
			return nil, err
		}
		if err := storage.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("sqlite store opened", zap.String("path", db.Path()))
		return &backingStore{
			kind:     "sqlite",
			guests:   storage.NewGuestRepository(db),
			bookings: storage.NewBookingRepository(db),
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	}
}
