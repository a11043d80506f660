package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// ErrSyncInProgress is returned when a pass is requested while one runs.
var ErrSyncInProgress = errors.New("sync already in progress")

// FeedFetcher downloads one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier is told about every finished sync pass.
type Notifier interface {
	SyncCompleted(result models.SyncResult)
}

// SyncOptions configures a SyncService.
type SyncOptions struct {
	Feeds       []models.FeedSource
	Fetcher     FeedFetcher
	Parser      *Parser
	Guests      GuestStore
	Bookings    BookingStore
	Defaults    models.BookingDefaults
	Concurrency int
	Clock       Clock
	Logger      *zap.Logger
	Notifier    Notifier
}

// SyncService pulls every configured feed and upserts its bookings.
type SyncService struct {
	feeds       []models.FeedSource
	fetcher     FeedFetcher
	parser      *Parser
	guests      GuestStore
	gateway     *Gateway
	defaults    models.BookingDefaults
	concurrency int
	clock       Clock
	logger      *zap.Logger
	notifier    Notifier

	running atomic.Bool

	mu   sync.RWMutex
	last *models.SyncResult
}

// NewSyncService creates a sync service.
func NewSyncService(opts SyncOptions) *SyncService {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parser == nil {
		opts.Parser = NewParser(opts.Clock, 0)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &SyncService{
		feeds:       opts.Feeds,
		fetcher:     opts.Fetcher,
		parser:      opts.Parser,
		guests:      opts.Guests,
		gateway:     NewGateway(opts.Bookings, opts.Logger),
		defaults:    opts.Defaults,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		logger:      opts.Logger,
		notifier:    opts.Notifier,
	}
}

// Feeds returns the configured feeds.
func (s *SyncService) Feeds() []models.FeedSource {
	return s.feeds
}

// Running reports whether a pass is in progress.
func (s *SyncService) Running() bool {
	return s.running.Load()
}

// Start begins a pass in the background and returns a channel that receives
// its result. It returns ErrSyncInProgress if a pass is already running.
func (s *SyncService) Start(ctx context.Context) (<-chan models.SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}

	done := make(chan models.SyncResult, 1)
	go func() {
		result := s.runPass(ctx)
		s.running.Store(false)
		done <- result
	}()
	return done, nil
}

// Run performs a pass and waits for it. Feed, guest and store failures are
// recorded in the result, never returned.
func (s *SyncService) Run(ctx context.Context) (models.SyncResult, error) {
	done, err := s.Start(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}
	return <-done, nil
}

// LastResult returns the result of the most recent finished pass.
func (s *SyncService) LastResult() (models.SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return models.SyncResult{}, false
	}
	return *s.last, true
}

func (s *SyncService) runPass(ctx context.Context) models.SyncResult {
	result := models.SyncResult{
		StartedAt: s.clock.Now(),
		Feeds:     make([]models.FeedResult, len(s.feeds)),
	}

	s.logger.Info("starting calendar sync", zap.Int("feeds", len(s.feeds)))
	if len(s.feeds) == 0 {
		s.logger.Warn("no feeds configured")
	}

	resolver := NewGuestResolver(s.guests, s.logger)
	ws := NewWorkingSet(s.defaults)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, feed := range s.feeds {
		g.Go(func() error {
			result.Feeds[i] = s.syncFeed(ctx, feed, resolver, ws)
			return nil
		})
	}
	g.Wait()

	result.GuestsCreated = resolver.Created()

	n, err := s.gateway.UpsertAll(ctx, ws.Bookings())
	if err != nil {
		s.logger.Error("storing bookings failed", zap.Error(err))
		result.StoreError = err.Error()
	}
	result.Upserted = n
	result.FinishedAt = s.clock.Now()

	s.logger.Info("calendar sync finished",
		zap.Int("feeds_ok", result.FeedsWithOutcome(models.OutcomeOK)),
		zap.Int("feeds_errored", result.FeedsWithOutcome(models.OutcomeErrored)),
		zap.Int("guests_created", result.GuestsCreated),
		zap.Int("upserted", result.Upserted),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.SyncCompleted(result)
	}
	return result
}

// syncFeed fetches, parses and normalizes one feed into ws. Failures are
// confined to the returned FeedResult.
func (s *SyncService) syncFeed(ctx context.Context, feed models.FeedSource, resolver *GuestResolver, ws *WorkingSet) models.FeedResult {
	res := models.FeedResult{RoomID: feed.RoomID, URL: redactURL(feed.URL)}
	log := s.logger.With(zap.Int("room_id", feed.RoomID), zap.String("url", res.URL))

	log.Info("fetching feed")
	body, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return s.feedFailed(log, res, err)
	}

	entries, err := s.parser.Parse(body)
	if err != nil {
		return s.feedFailed(log, res, err)
	}

	for entry := range entries {
		res.EventsFound++
		if entry.Skipped() {
			res.Skipped++
			log.Debug("skipping incomplete event", zap.String("uid", entry.Event.UID), zap.String("reason", entry.SkipReason))
			continue
		}

		ev := entry.Event
		log.Debug("found booking",
			zap.String("summary", ev.Summary),
			zap.Time("start", ev.Start),
			zap.Time("end", ev.End),
		)

		guestID, err := resolver.Resolve(ctx, strings.TrimSpace(ev.Summary))
		if err != nil {
			res.GuestErrors++
		}

		if _, added := ws.Normalize(ev, feed.RoomID, guestID, s.clock.Now()); added {
			res.Accepted++
		} else {
			res.Duplicates++
		}
	}

	res.Outcome = models.OutcomeOK
	return res
}

func (s *SyncService) feedFailed(log *zap.Logger, res models.FeedResult, err error) models.FeedResult {
	log.Error("feed failed", zap.Error(err))
	res.Outcome = models.OutcomeErrored
	res.Error = err.Error()
	return res
}
