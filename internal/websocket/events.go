package websocket

import (
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *zap.Logger) *EventBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBroadcaster{hub: hub, logger: logger}
}

// SyncCompleted sends one sync.feed_error event per failed feed followed by
// a sync.completed summary.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	for _, feed := range result.Feeds {
		if feed.Outcome != models.OutcomeErrored {
			continue
		}
		b.broadcast(NewMessage(TypeSyncFeedError, SyncFeedErrorPayload{
			RoomID:  feed.RoomID,
			URL:     feed.URL,
			Error:   "feed_error",
			Message: feed.Error,
		}))
	}

	payload := SyncCompletedPayload{
		StartedAt:     result.StartedAt,
		FinishedAt:    result.FinishedAt,
		Feeds:         len(result.Feeds),
		FeedsOK:       result.FeedsWithOutcome(models.OutcomeOK),
		FeedsErrored:  result.FeedsWithOutcome(models.OutcomeErrored),
		GuestsCreated: result.GuestsCreated,
		Upserted:      result.Upserted,
		StoreError:    result.StoreError,
	}

	switch {
	case result.StoreError != "" || (payload.Feeds > 0 && payload.FeedsOK == 0):
		payload.Status = "error"
	case payload.FeedsErrored > 0:
		payload.Status = "partial"
	default:
		payload.Status = "success"
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	b.hub.Broadcast(data)
}
