// Package models contains the domain models for the application.
package models

import (
	"time"
)

// FeedSource is one configured remote calendar feed.
// RoomID is the 1-based position of the feed URL in configuration.
type FeedSource struct {
	RoomID int    `json:"room_id"`
	URL    string `json:"url"`
}

// FeedEvent is a complete event read from a remote feed.
// Start is inclusive, End is exclusive.
type FeedEvent struct {
	UID     string    `json:"uid,omitempty"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Outcome constants for feed and event processing.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeErrored = "errored"
)

// FeedResult records what happened to one feed during a sync pass.
type FeedResult struct {
	RoomID      int    `json:"room_id"`
	URL         string `json:"url"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
	EventsFound int    `json:"events_found"`
	Accepted    int    `json:"accepted"`
	Skipped     int    `json:"skipped"`
	Duplicates  int    `json:"duplicates"`
	GuestErrors int    `json:"guest_errors"`
}

// SyncResult contains the results of one full sync pass over all feeds.
type SyncResult struct {
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Feeds         []FeedResult `json:"feeds"`
	GuestsCreated int          `json:"guests_created"`
	Upserted      int          `json:"upserted"`
	StoreError    string       `json:"store_error,omitempty"`
}

// FeedsWithOutcome counts feeds that ended with the given outcome.
func (r SyncResult) FeedsWithOutcome(outcome string) int {
	n := 0
	for _, f := range r.Feeds {
		if f.Outcome == outcome {
			n++
		}
	}
	return n
}
