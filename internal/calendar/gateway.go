package calendar

import (
	"context"

	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// BookingStore is the booking side of the backing store.
type BookingStore interface {
	// Upsert inserts or replaces bookings keyed on (room, check-in). The
	// input must not contain the same key twice.
	Upsert(ctx context.Context, bookings []models.Booking) (int, error)
	ListByRoom(ctx context.Context, roomID int) ([]models.Booking, error)
}

// Gateway writes a sync pass's bookings to the store in one call.
type Gateway struct {
	store  BookingStore
	logger *zap.Logger
}

// NewGateway creates a gateway over store.
func NewGateway(store BookingStore, logger *zap.Logger) *Gateway {
	return &Gateway{store: store, logger: logger}
}

// UpsertAll writes records in one batch. An empty input is a no-op. Records
// sharing (room, check-in) are collapsed, the later one winning. Backend
// failures are returned as *StoreError.
func (g *Gateway) UpsertAll(ctx context.Context, records []models.Booking) (int, error) {
	if len(records) == 0 {
		g.logger.Info("no bookings to store, nothing to do")
		return 0, nil
	}

	batch := collapseByKey(records)
	if dropped := len(records) - len(batch); dropped > 0 {
		g.logger.Debug("collapsed bookings sharing room and check-in", zap.Int("dropped", dropped))
	}

	g.logger.Info("storing bookings", zap.Int("count", len(batch)))
	n, err := g.store.Upsert(ctx, batch)
	if err != nil {
		return 0, &StoreError{Op: "upserting bookings", Err: err}
	}

	g.logger.Info("bookings stored", zap.Int("count", n))
	return n, nil
}

// collapseByKey keeps one record per upsert key: the last one, at the
// position where the key first appeared.
func collapseByKey(records []models.Booking) []models.Booking {
	index := make(map[models.UpsertKey]int, len(records))
	out := make([]models.Booking, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}
